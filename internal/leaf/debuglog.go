package leaf

import (
	"context"
	"log/slog"

	"github.com/canopy-bt/canopy/internal/bt"
)

// NewDebugLog always returns SUCCESS after emitting a structured log line
// at the given level, useful for tracing a descriptor during development.
func NewDebugLog(name string, level slog.Level, message string, attrs ...slog.Attr) *bt.Node {
	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		slog.Default().LogAttrs(context.Background(), level, message, append([]slog.Attr{slog.String("node", n.Name())}, attrs...)...)
		return bt.Success, nil
	}
	return bt.New(name, tick, nil)
}
