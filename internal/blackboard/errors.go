package blackboard

import "errors"

var (
	ErrKeyNotFound  = errors.New("blackboard: key not found")
	ErrAccessDenied = errors.New("blackboard: access denied")
)
