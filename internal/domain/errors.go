package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrInsufficientData    = errors.New("insufficient data to score market")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedTrade      = errors.New("malformed trade record")
	ErrNoPostSignalPrice   = errors.New("no price available after peak signal")
	ErrLockHeld            = errors.New("lock already held")
)
