package handler

import (
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/stretchr/testify/mock"
)

// MockAssetRepository is a mock implementation of repository.AssetRepository
type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) FindBySlug(slug string) (*domain.Asset, error) {
	args := m.Called(slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) FindByID(id uint64) (*domain.Asset, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) ListPublished(page, limit int) ([]domain.Asset, int64, error) {
	args := m.Called(page, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.Asset), args.Get(1).(int64), args.Error(2)
}

func (m *MockAssetRepository) Create(asset *domain.Asset) error {
	args := m.Called(asset)
	return args.Error(0)
}

func (m *MockAssetRepository) IncrementDownloadCount(id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockCodeService is a mock implementation of service.CodeService
type MockCodeService struct {
	mock.Mock
}

func (m *MockCodeService) Redeem(code string, asset *domain.Asset, userID string) (*domain.RedemptionCode, error) {
	args := m.Called(code, asset, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeService) GetValidRedemption(userID string, assetID uint64) (*domain.RedemptionCode, error) {
	args := m.Called(userID, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeService) CheckRedownloadEligibility(code *domain.RedemptionCode) domain.RedownloadEligibility {
	args := m.Called(code)
	return args.Get(0).(domain.RedownloadEligibility)
}

func (m *MockCodeService) ProcessRedownload(code *domain.RedemptionCode) (*domain.RedemptionCode, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeService) GenerateBatch(asset *domain.Asset, req domain.GenerateCodesRequest) ([]string, error) {
	args := m.Called(asset, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockTokenService is a mock implementation of service.TokenService
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Generate(asset *domain.Asset, userID, ip string) (string, error) {
	args := m.Called(asset, userID, ip)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) Validate(token, ip string) (*domain.DownloadToken, error) {
	args := m.Called(token, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DownloadToken), args.Error(1)
}

func (m *MockTokenService) Consume(token string) (bool, error) {
	args := m.Called(token)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenService) SweepExpired(grace time.Duration) (int64, error) {
	args := m.Called(grace)
	return args.Get(0).(int64), args.Error(1)
}

// StubAuditService records calls synchronously for assertions
type StubAuditService struct {
	Entries []StubAuditEntry
}

// StubAuditEntry is one captured LogAttempt call
type StubAuditEntry struct {
	AssetID *uint64
	UserID  *string
	IP      string
	Action  string
	Result  string
	Details map[string]interface{}
}

func (s *StubAuditService) LogAttempt(assetID *uint64, userID *string, ip, _, action, result string, details map[string]interface{}) {
	s.Entries = append(s.Entries, StubAuditEntry{
		AssetID: assetID,
		UserID:  userID,
		IP:      ip,
		Action:  action,
		Result:  result,
		Details: details,
	})
}

func (s *StubAuditService) List(repository.AuditFilter, int, int) ([]domain.AuditLogEntry, int64, error) {
	return nil, 0, nil
}

func (s *StubAuditService) SuspiciousIPs() ([]domain.SuspiciousIP, error) {
	return nil, nil
}
