package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/leaf"
	"github.com/canopy-bt/canopy/internal/script"
	"github.com/canopy-bt/canopy/internal/tree"
	"github.com/canopy-bt/canopy/internal/treeconfig"
)

func runCommand(fs *flag.FlagSet, args []string) error {
	descriptorPath := fs.String("descriptor", "", "path to a JSON tree descriptor")
	hz := fs.Float64("hz", 10, "ticks per second")
	dashboard := fs.Bool("dashboard", false, "force the live dashboard on, even off a TTY")
	noDashboard := fs.Bool("no-dashboard", false, "force the live dashboard off, even on a TTY")
	snapshotEvery := fs.Uint64("snapshot-every", 0, "take an automatic snapshot every N ticks (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *descriptorPath == "" {
		return fmt.Errorf("run: --descriptor is required")
	}

	f, err := os.Open(*descriptorPath)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	d, err := treeconfig.Load(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := &treeconfig.Registry{}
	if descriptorCarriesJSBody(d) {
		rt, err := script.NewRuntime(ctx)
		if err != nil {
			return fmt.Errorf("run: starting script runtime: %w", err)
		}
		defer rt.Close()
		reg.CompileJSAction = func(body string) (leaf.ActionFunc, error) {
			return script.CompileAction(rt, body)
		}
		reg.CompileJSCondition = func(body string) (leaf.ConditionFunc, error) {
			return script.CompileCondition(rt, body)
		}
	}

	root, err := treeconfig.Build(d, reg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	bb := blackboard.New()
	m := tree.New(bb, tree.WithSnapshotEveryNTicks(*snapshotEvery))
	if err := m.SetRoot(ctx, root); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		m.Stop()
	}()

	wantDashboard := *dashboard || (!*noDashboard && term.IsTerminal(int(os.Stdout.Fd())))

	m.Run(ctx, *hz)

	if wantDashboard {
		if err := runDashboard(m); err != nil {
			fmt.Fprintf(os.Stderr, "run: dashboard: %v\n", err)
		}
	} else {
		for {
			select {
			case <-m.Done():
				return m.Err()
			case <-time.After(time.Second):
				stats := m.Stats()
				fmt.Fprintf(os.Stdout, "tick=%d status=%s success=%d failure=%d error=%d\n",
					stats.TickCount, stats.LastTickStatus, stats.SuccessCount, stats.FailureCount, stats.ErrorCount)
			}
		}
	}

	<-m.Done()
	return m.Err()
}

func descriptorCarriesJSBody(d *treeconfig.Descriptor) bool {
	if _, ok := d.Properties["body"]; ok {
		return true
	}
	for i := range d.Children {
		if descriptorCarriesJSBody(&d.Children[i]) {
			return true
		}
	}
	return false
}
