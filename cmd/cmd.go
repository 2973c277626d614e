// submodule cmd contains command definitions
package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func formatFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, markdown, csv, json or yaml",
		Value:   value,
	}
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}
}

// setupCommand initializes the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the API session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in with a username and password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Account username (prompted when omitted)",
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (prompted when omitted)",
					},
					&cli.BoolFlag{
						Name:  "browser",
						Usage: "Log in through a form served on the local dashboard address",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Invalidate the refresh cookie and clear local credentials and cache",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Resolve the stored session and print who is logged in",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Mint a new access token from the refresh cookie",
				Action: r.AuthRefresh,
			},
			{
				Name:  "register",
				Usage: "Create an account and log in",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Account username",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (prompted when omitted)",
					},
					&cli.StringFlag{
						Name:  "position",
						Usage: "Listed position: PG, SG, SF, PF or C",
						Value: "PG",
					},
					&cli.IntFlag{
						Name:  "height",
						Usage: "Height in centimetres",
					},
				},
				Action: r.AuthRegister,
			},
			{
				Name:  "import",
				Usage: "Import a browser session from a DevTools \"Copy as cURL\" command",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
				},
				Action: r.AuthImport,
			},
		},
	}
}

// workoutsCommand handles workout operations
func workoutsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "workouts",
		Aliases: []string{"w"},
		Usage:   "List, edit and export workouts",
		Before:  r.requireLogin,
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List in-progress and completed workouts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status: all, in_progress or completed",
						Value: "all",
					},
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "List the locally cached workouts without calling the API",
					},
					formatFlag("text"),
				},
				Action: r.WorkoutsList,
			},
			{
				Name:  "show",
				Usage: "Show a workout with its sessions",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{formatFlag("text")},
				Action: r.WorkoutsShow,
			},
			{
				Name:  "create",
				Usage: "Create a workout",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Workout name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Workout description",
					},
					&cli.FloatFlag{
						Name:  "goal",
						Usage: "Goal percentage (0-100)",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "attempts",
						Usage: "Target attempts per session",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "sessions",
						Usage: "Target number of sessions",
						Value: 10,
					},
				},
				Action: r.WorkoutsCreate,
			},
			{
				Name:  "edit",
				Usage: "Edit an in-progress workout; only the given flags change",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Workout name"},
					&cli.StringFlag{Name: "description", Usage: "Workout description"},
					&cli.FloatFlag{Name: "goal", Usage: "Goal percentage (0-100)"},
					&cli.IntFlag{Name: "attempts", Usage: "Target attempts per session"},
					&cli.IntFlag{Name: "sessions", Usage: "Target number of sessions"},
				},
				Action: r.WorkoutsEdit,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Delete a workout and its sessions",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{yesFlag()},
				Action: r.WorkoutsDelete,
			},
			{
				Name:      "export",
				Usage:     "Export workouts to files concurrently",
				ArgsUsage: "[id...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Export every workout",
					},
					formatFlag("json"),
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: shotlog_export_<unix time>)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent workers (max 10)",
						Value: 5,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Workout fetches per second",
						Value: 5,
					},
				},
				Action: r.WorkoutsExport,
			},
		},
	}
}

// sessionsCommand handles session operations
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Log and edit practice sessions",
		Before:  r.requireLogin,
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Log a session against a workout",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "workout",
						Aliases:  []string{"w"},
						Usage:    "Workout id",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Session date, YYYY-MM-DD (default: today)",
					},
					&cli.IntFlag{
						Name:     "makes",
						Aliases:  []string{"m"},
						Usage:    "Shots made",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "attempts",
						Aliases: []string{"a"},
						Usage:   "Shots attempted (default: the workout's target attempts)",
					},
				},
				Action: r.SessionsAdd,
			},
			{
				Name:  "show",
				Usage: "Show a session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{formatFlag("text")},
				Action: r.SessionsShow,
			},
			{
				Name:  "edit",
				Usage: "Edit a session; only the given flags change",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "Session date, YYYY-MM-DD"},
					&cli.IntFlag{Name: "makes", Aliases: []string{"m"}, Usage: "Shots made"},
					&cli.IntFlag{Name: "attempts", Aliases: []string{"a"}, Usage: "Shots attempted"},
				},
				Action: r.SessionsEdit,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Delete a session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{yesFlag()},
				Action: r.SessionsDelete,
			},
		},
	}
}

// statsCommand prints the stats overview.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show the stats overview",
		Before: r.requireLogin,
		Flags:  []cli.Flag{formatFlag("text")},
		Action: r.Stats,
	}
}

// exportsCommand lists the local export history. It needs the database but no session.
func exportsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "exports",
		Usage: "Show the history of bulk exports",
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, r.connect(ctx)
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to show",
				Value:   10,
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show runs with this status (running, completed, partial, failed, cancelled)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the history as JSON",
			},
		},
		Action: r.WorkoutsExports,
	}
}

// tuiCommand returns the top-level TUI command for interactive workout browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive terminal UI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "export-dir",
				Usage: "Directory for exports started from the TUI",
				Value: "shotlog_export",
			},
		},
		Action: r.TUI,
	}
}

// serveCommand runs the local dashboard.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the local dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (default: server.host from config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (default: server.port from config)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the dashboard in a browser",
			},
		},
		Action: r.Serve,
	}
}
