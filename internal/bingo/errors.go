package bingo

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadySubscribed  = errors.New("address already subscribed for next play")
	ErrSubscriptionClosed = errors.New("subscription window closed")
	ErrNoPlayers          = errors.New("no players subscribed")
	ErrTooEarly           = errors.New("game cannot start yet")
	ErrGameOngoing        = errors.New("game ongoing")
	ErrGameNotRunning     = errors.New("game not running")
	ErrNoPrize            = errors.New("no prize to collect")
	ErrIndexOutOfRange    = errors.New("index out of range")
)
