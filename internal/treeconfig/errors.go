package treeconfig

import "errors"

// ErrConfigInvalid wraps any descriptor that fails to decode or
// validate: an unknown node type, a missing required property or a
// duplicate node name. Unknown subtrees and subtree reference cycles are
// reported with ErrUnknownSubtree and ErrSubtreeCycle instead.
var ErrConfigInvalid = errors.New("treeconfig: invalid descriptor")

// ErrUnknownSubtree is returned when a Subtree descriptor references a
// name absent from the Registry's Subtrees map.
var ErrUnknownSubtree = errors.New("treeconfig: unknown subtree")

// ErrSubtreeCycle is returned when a chain of Subtree references loops
// back on itself.
var ErrSubtreeCycle = errors.New("treeconfig: subtree reference cycle")
