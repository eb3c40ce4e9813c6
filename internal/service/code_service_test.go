package service

import (
	"errors"
	"testing"
	"time"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCodeRepository is a mock implementation of CodeRepository
type MockCodeRepository struct {
	mock.Mock
}

func (m *MockCodeRepository) FindByHash(prefix, hash string) (*domain.RedemptionCode, error) {
	args := m.Called(prefix, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeRepository) FindByID(id uint64) (*domain.RedemptionCode, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeRepository) FindRedeemedByUser(userID string, assetID uint64) (*domain.RedemptionCode, error) {
	args := m.Called(userID, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionCode), args.Error(1)
}

func (m *MockCodeRepository) CreateBatch(codes []*domain.RedemptionCode) error {
	args := m.Called(codes)
	return args.Error(0)
}

func (m *MockCodeRepository) MarkRedeemed(id uint64, userID string, now time.Time, defaultMaxDownloads int, defaultExpiresAt time.Time) (bool, error) {
	args := m.Called(id, userID, now, defaultMaxDownloads, defaultExpiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockCodeRepository) RecordRedownload(id uint64, now, windowStart time.Time, hourlyCap int) (bool, error) {
	args := m.Called(id, now, windowStart, hourlyCap)
	return args.Bool(0), args.Error(1)
}

var testClock = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCodeService(repo *MockCodeRepository) *codeService {
	return &codeService{
		codes: repo,
		cfg:   CodeQuotaConfig{DefaultMaxDownloads: 3, DefaultExpiryDays: 365, HourlyCap: 3},
		now:   func() time.Time { return testClock },
	}
}

func testAsset() *domain.Asset {
	return &domain.Asset{ID: 42, Slug: "premium-pack", Type: domain.AssetTypePaid}
}

func ptrStr(s string) *string { return &s }

func ptrTime(t time.Time) *time.Time { return &t }

func TestRedeem_UnknownCode(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(nil, nil)

	code, err := svc.Redeem("abcd-efgh-jkmn", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeNotFound, err)
	repo.AssertExpectations(t)
}

func TestRedeem_TooShortInput(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	code, err := svc.Redeem("ab", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeNotFound, err)
	repo.AssertNotCalled(t, "FindByHash")
}

func TestRedeem_WrongAsset(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	// Code exists but belongs to a different asset
	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 99,
	}, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeNotFound, err)
}

func TestRedeem_ExpiredCode(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:        7,
		AssetID:   42,
		ExpiresAt: ptrTime(testClock.Add(-time.Hour)),
	}, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeExpired, err)
}

func TestRedeem_AlreadyUsedBySameUser(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	existing := &domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
		IsUsed:  true,
		UserID:  ptrStr("user1"),
	}
	repo.On("FindByHash", "ABCD", mock.Anything).Return(existing, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.NoError(t, err)
	assert.Equal(t, existing, code)
	repo.AssertNotCalled(t, "MarkRedeemed")
}

func TestRedeem_AlreadyUsedByOtherUser(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
		IsUsed:  true,
		UserID:  ptrStr("someone-else"),
	}, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeAlreadyUsed, err)
}

func TestRedeem_Success(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
	}, nil)
	repo.On("MarkRedeemed", uint64(7), "user1", testClock, 3, testClock.AddDate(0, 0, 365)).
		Return(true, nil)
	redeemed := &domain.RedemptionCode{
		ID:           7,
		AssetID:      42,
		IsUsed:       true,
		UserID:       ptrStr("user1"),
		MaxDownloads: 3,
	}
	repo.On("FindByID", uint64(7)).Return(redeemed, nil)

	code, err := svc.Redeem("abcd-efgh-jkmn", testAsset(), "user1")
	assert.NoError(t, err)
	assert.Equal(t, redeemed, code)
	repo.AssertExpectations(t)
}

func TestRedeem_CaseAndWhitespaceNormalized(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	var seenHash string
	repo.On("FindByHash", "ABCD", mock.Anything).
		Run(func(args mock.Arguments) { seenHash = args.String(1) }).
		Return(nil, nil).Twice()

	_, _ = svc.Redeem("  abcd-efgh-jkmn ", testAsset(), "user1")
	first := seenHash
	_, _ = svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")

	assert.Equal(t, first, seenHash)
}

func TestRedeem_RaceLostToSameUser(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
	}, nil)
	repo.On("MarkRedeemed", uint64(7), "user1", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil)
	repo.On("FindByID", uint64(7)).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
		IsUsed:  true,
		UserID:  ptrStr("user1"),
	}, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.NoError(t, err)
	assert.NotNil(t, code)
}

func TestRedeem_RaceLostToOtherUser(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindByHash", "ABCD", mock.Anything).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
	}, nil)
	repo.On("MarkRedeemed", uint64(7), "user1", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil)
	repo.On("FindByID", uint64(7)).Return(&domain.RedemptionCode{
		ID:      7,
		AssetID: 42,
		IsUsed:  true,
		UserID:  ptrStr("someone-else"),
	}, nil)

	code, err := svc.Redeem("ABCD-EFGH-JKMN", testAsset(), "user1")
	assert.Nil(t, code)
	assert.Equal(t, common.ErrCodeAlreadyUsed, err)
}

func TestGetValidRedemption_None(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindRedeemedByUser", "user1", uint64(42)).Return(nil, nil)

	code, err := svc.GetValidRedemption("user1", 42)
	assert.NoError(t, err)
	assert.Nil(t, code)
}

func TestGetValidRedemption_Expired(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("FindRedeemedByUser", "user1", uint64(42)).Return(&domain.RedemptionCode{
		ID:        7,
		IsUsed:    true,
		ExpiresAt: ptrTime(testClock.Add(-time.Minute)),
	}, nil)

	code, err := svc.GetValidRedemption("user1", 42)
	assert.NoError(t, err)
	assert.Nil(t, code)
}

func TestGetValidRedemption_Idempotent(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	record := &domain.RedemptionCode{ID: 7, IsUsed: true, MaxDownloads: 3}
	repo.On("FindRedeemedByUser", "user1", uint64(42)).Return(record, nil)

	first, err := svc.GetValidRedemption("user1", 42)
	assert.NoError(t, err)
	second, err := svc.GetValidRedemption("user1", 42)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheckRedownloadEligibility(t *testing.T) {
	svc := newTestCodeService(nil)

	tests := []struct {
		name       string
		code       *domain.RedemptionCode
		want       bool
		wantReason string
	}{
		{
			name:       "not redeemed",
			code:       &domain.RedemptionCode{IsUsed: false},
			want:       false,
			wantReason: "code not redeemed",
		},
		{
			name: "expired",
			code: &domain.RedemptionCode{
				IsUsed:    true,
				ExpiresAt: ptrTime(testClock.Add(-time.Second)),
			},
			want:       false,
			wantReason: "code expired",
		},
		{
			name: "hourly limit reached",
			code: &domain.RedemptionCode{
				IsUsed:              true,
				DownloadCount:       1,
				MaxDownloads:        10,
				LastDownloadAt:      ptrTime(testClock.Add(-10 * time.Minute)),
				HourlyDownloadCount: 3,
			},
			want:       false,
			wantReason: "hourly download limit reached",
		},
		{
			name: "hourly limit checked before lifetime quota",
			code: &domain.RedemptionCode{
				IsUsed:              true,
				DownloadCount:       3,
				MaxDownloads:        3,
				LastDownloadAt:      ptrTime(testClock.Add(-10 * time.Minute)),
				HourlyDownloadCount: 3,
			},
			want:       false,
			wantReason: "hourly download limit reached",
		},
		{
			name: "lifetime quota exhausted",
			code: &domain.RedemptionCode{
				IsUsed:        true,
				DownloadCount: 3,
				MaxDownloads:  3,
			},
			want:       false,
			wantReason: "download quota exhausted",
		},
		{
			name: "hourly window rolled over",
			code: &domain.RedemptionCode{
				IsUsed:              true,
				DownloadCount:       1,
				MaxDownloads:        3,
				LastDownloadAt:      ptrTime(testClock.Add(-2 * time.Hour)),
				HourlyDownloadCount: 3,
			},
			want: true,
		},
		{
			name: "eligible",
			code: &domain.RedemptionCode{
				IsUsed:        true,
				DownloadCount: 1,
				MaxDownloads:  3,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.CheckRedownloadEligibility(tt.code)
			assert.Equal(t, tt.want, got.CanRedownload)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestProcessRedownload_Success(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	code := &domain.RedemptionCode{
		ID:            7,
		IsUsed:        true,
		DownloadCount: 1,
		MaxDownloads:  3,
	}
	repo.On("RecordRedownload", uint64(7), testClock, testClock.Add(-time.Hour), 3).
		Return(true, nil)
	fresh := &domain.RedemptionCode{
		ID:            7,
		IsUsed:        true,
		DownloadCount: 2,
		MaxDownloads:  3,
	}
	repo.On("FindByID", uint64(7)).Return(fresh, nil)

	got, err := svc.ProcessRedownload(code)
	assert.NoError(t, err)
	assert.Equal(t, 2, got.DownloadCount)
	assert.Equal(t, 1, got.DownloadsRemaining())
}

func TestProcessRedownload_HourlyQuota(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	code := &domain.RedemptionCode{
		ID:                  7,
		IsUsed:              true,
		DownloadCount:       1,
		MaxDownloads:        3,
		LastDownloadAt:      ptrTime(testClock.Add(-5 * time.Minute)),
		HourlyDownloadCount: 3,
	}

	got, err := svc.ProcessRedownload(code)
	assert.Nil(t, got)
	assert.Equal(t, common.ErrHourlyQuota, err)
	repo.AssertNotCalled(t, "RecordRedownload")
}

func TestProcessRedownload_QuotaRace(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	code := &domain.RedemptionCode{
		ID:            7,
		IsUsed:        true,
		DownloadCount: 2,
		MaxDownloads:  3,
	}
	// The conditional update loses: a concurrent download took the last slot
	repo.On("RecordRedownload", uint64(7), mock.Anything, mock.Anything, 3).
		Return(false, nil)

	got, err := svc.ProcessRedownload(code)
	assert.Nil(t, got)
	assert.Equal(t, common.ErrQuotaExhausted, err)
}

func TestGenerateBatch(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	var created []*domain.RedemptionCode
	repo.On("CreateBatch", mock.Anything).
		Run(func(args mock.Arguments) { created = args.Get(0).([]*domain.RedemptionCode) }).
		Return(nil)

	codes, err := svc.GenerateBatch(testAsset(), domain.GenerateCodesRequest{Count: 5, ExpiresInDays: 30})
	assert.NoError(t, err)
	assert.Len(t, codes, 5)
	assert.Len(t, created, 5)

	seen := make(map[string]bool)
	for i, plaintext := range codes {
		assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}$`, plaintext)
		assert.False(t, seen[plaintext], "duplicate code in batch")
		seen[plaintext] = true

		record := created[i]
		assert.Equal(t, uint64(42), record.AssetID)
		assert.Equal(t, hashCode(normalizeCode(plaintext)), record.CodeHash)
		assert.Equal(t, normalizeCode(plaintext)[:codePrefixLen], record.CodePrefix)
		assert.Equal(t, 3, record.MaxDownloads)
		assert.NotNil(t, record.ExpiresAt)
		assert.Equal(t, testClock.AddDate(0, 0, 30), *record.ExpiresAt)
		// Plaintext must never appear in the stored record
		assert.NotContains(t, record.CodeHash, plaintext)
	}
}

func TestGenerateBatch_RepoError(t *testing.T) {
	repo := new(MockCodeRepository)
	svc := newTestCodeService(repo)

	repo.On("CreateBatch", mock.Anything).Return(errors.New("db down"))

	codes, err := svc.GenerateBatch(testAsset(), domain.GenerateCodesRequest{Count: 2})
	assert.Error(t, err)
	assert.Nil(t, codes)
}
