package common

import "errors"

// Business logic errors
var (
	// Download token errors. One uniform sentinel on purpose: callers
	// must not learn which validation check rejected a token.
	ErrInvalidToken = errors.New("invalid token")

	// Asset errors
	ErrAssetNotFound = errors.New("asset not found")

	// Redemption code errors
	ErrCodeNotFound    = errors.New("invalid or unknown code")
	ErrCodeExpired     = errors.New("code expired")
	ErrCodeAlreadyUsed = errors.New("code already redeemed by another user")
	ErrQuotaExhausted  = errors.New("download quota exhausted")
	ErrHourlyQuota     = errors.New("hourly download limit reached")
)
