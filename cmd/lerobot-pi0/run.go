package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/huh"
)

type RunCommand struct {
	Trajectories int  `long:"trajectories" short:"n" default:"1" description:"Number of trajectories to execute, -1 for unlimited"`
	Yes          bool `long:"yes" short:"y" description:"Skip the confirmation between trajectories"`
	policyFlags
}

func (c *RunCommand) Execute(args []string) error {
	if c.Trajectories == 0 {
		return fmt.Errorf("nothing to do with 0 trajectories")
	}

	logger := newConsoleLogger()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c.policyFlags.apply(&cfg.Policy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, nil, logger, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	confirm := c.confirmFunc()
	if err := runner.Run(ctx, c.Trajectories, confirm); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (c *RunCommand) confirmFunc() func(int) bool {
	if c.Yes {
		return func(int) bool { return true }
	}
	return func(done int) bool {
		again := true
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Executed %d trajectories. Run another?", done)).
					Affirmative("Yes").
					Negative("No").
					Value(&again),
			),
		)
		if err := form.Run(); err != nil {
			return false
		}
		return again
	}
}
