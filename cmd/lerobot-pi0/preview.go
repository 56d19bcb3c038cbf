package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/lerobot-pi0/pkg/camera"
)

type PreviewCommand struct{}

var (
	previewRoleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	previewDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// terminalDisplay summarizes each role's frame on stdout. Real image
// windows belong to an external capture/display backend; this keeps the
// preview loop honest about what the assembler would feed the policy.
func terminalDisplay(frames map[string]camera.Frame) bool {
	roles := make([]string, 0, len(frames))
	for role := range frames {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		f := frames[role]
		var sum int
		for _, p := range f.Pix {
			sum += int(p)
		}
		mean := 0.0
		if len(f.Pix) > 0 {
			mean = float64(sum) / float64(len(f.Pix))
		}
		fmt.Printf("%s %s\n",
			previewRoleStyle.Render(role),
			previewDimStyle.Render(fmt.Sprintf("%dx%dx%d mean=%.1f",
				f.Shape.Width, f.Shape.Height, f.Shape.Channels, mean)),
		)
	}
	return true
}

func (c *PreviewCommand) Execute(args []string) error {
	logger := newConsoleLogger()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, terminalDisplay, logger, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	fmt.Println("Camera preview running. Press Ctrl+C to exit.")
	if err := runner.Preview(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
