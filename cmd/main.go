package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := newApp(runner)

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case isLoginError(err):
			fmt.Fprintf(os.Stderr, "%v\nRun 'shotlog auth login' to start a session.\n", err)
			os.Exit(1)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// newApp builds the command tree around r.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "shotlog",
		Usage:   "Track shooting workouts and practice sessions",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: r.loadConfig,
		After: func(ctx context.Context, cmd *cli.Command) error {
			return r.Close()
		},
		Commands: r.register(),
	}
}
