package pool

import "errors"

var (
	ErrAdminOnly             = errors.New("admin only")
	ErrInvalidPool           = errors.New("invalid pool")
	ErrInvalidToken          = errors.New("invalid token")
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidWeights        = errors.New("weights must sum to one")
	ErrInvalidFee            = errors.New("fee must be below one")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient pool balance")
)
