package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/leaf"
	"github.com/canopy-bt/canopy/internal/treeconfig"
)

func dumpCommand(fs *flag.FlagSet, args []string) error {
	descriptorPath := fs.String("descriptor", "", "path to a JSON tree descriptor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *descriptorPath == "" {
		return fmt.Errorf("dump: --descriptor is required")
	}

	f, err := os.Open(*descriptorPath)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	defer f.Close()

	d, err := treeconfig.Load(f)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	// Named action/condition funcs aren't available at dump time (no
	// running application to supply them); stub them out with no-ops so
	// structural validation (types, required properties, duplicate
	// names) still runs against the full tree.
	if _, err := treeconfig.Build(d, stubRegistry(d)); err != nil {
		return fmt.Errorf("dump: descriptor invalid: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	fmt.Fprintln(os.Stderr, "descriptor is valid")
	return nil
}

// stubRegistry resolves every named action/condition func referenced by
// d to a harmless placeholder, purely so Build can exercise structural
// validation without a real application wired in.
func stubRegistry(d *treeconfig.Descriptor) *treeconfig.Registry {
	reg := &treeconfig.Registry{
		Actions:    map[string]func([]any) leaf.ActionFunc{},
		Conditions: map[string]func([]any) leaf.ConditionFunc{},
	}
	var walk func(n *treeconfig.Descriptor)
	walk = func(n *treeconfig.Descriptor) {
		if name, ok := n.Properties["func"].(string); ok {
			reg.Actions[name] = stubAction
			reg.Conditions[name] = stubCondition
		}
		if n.Type == "Action" {
			reg.Actions[n.Name] = stubAction
		}
		for i := range n.Children {
			walk(&n.Children[i])
		}
	}
	walk(d)
	return reg
}

func stubAction([]any) leaf.ActionFunc {
	return func(context.Context, *blackboard.Client) (bt.Status, error) { return bt.Success, nil }
}

func stubCondition([]any) leaf.ConditionFunc {
	return func(*blackboard.Client) (bool, error) { return true, nil }
}
