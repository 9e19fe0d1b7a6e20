package bt

import "errors"

// Error taxonomy per the tree's error handling design. These are
// sentinels so callers can match with errors.Is through any amount of
// fmt.Errorf("...: %w", err) wrapping.
var (
	ErrSetupFailed  = errors.New("bt: setup failed")
	ErrTickError    = errors.New("bt: tick error")
	ErrTimeout      = errors.New("bt: timeout")
	ErrCancelled    = errors.New("bt: cancelled")
	ErrKeyNotFound  = errors.New("bt: key not found")
	ErrAccessDenied = errors.New("bt: access denied")
	ErrConfigInvalid = errors.New("bt: config invalid")
	ErrCycle        = errors.New("bt: cycle detected")
)
