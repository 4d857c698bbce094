// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   defaultConfigPath,
	}
}

// setupCommand creates the config file and the development service database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml, initialize the database and run migrations",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// historyCommand handles view-history records through the engine.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "Read and write view-history records",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Fetch the view-history record for an entry",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "entry"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.HistoryGet,
			},
			{
				Name:  "set",
				Usage: "Queue one write for an entry and wait for it",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "entry"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Extended status (viewed, started, complete)",
					},
					&cli.FloatFlag{
						Name:  "position",
						Usage: "Last time reached in seconds",
						Value: -1,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up waiting after this long",
						Value: defaultWaitTimeout,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistorySet,
			},
			{
				Name:  "threshold",
				Usage: "Print the completion threshold for a clip duration",
				Flags: []cli.Flag{
					&cli.FloatFlag{
						Name:     "duration",
						Aliases:  []string{"d"},
						Usage:    "Clip duration in seconds",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "percent",
						Usage: "Completion percent (default from config)",
					},
					&cli.FloatFlag{
						Name:  "seconds",
						Usage: "Seconds before the end that count as complete (default from config)",
						Value: -1,
					},
				},
				Action: r.HistoryThreshold,
			},
		},
	}
}

// replayCommand drives the engine with a scripted player session.
func replayCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Replay a scripted player session through the engine",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "script"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print final records as JSON",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only print final records",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up waiting for pending writes after this long",
				Value: defaultWaitTimeout,
			},
		},
		Action: r.Replay,
	}
}

// serveCommand runs the development record service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the development record service (api_v3 and proxy)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from config)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database path (default from config)",
			},
			&cli.BoolFlag{
				Name:  "auto-session",
				Usage: "Accept any ks, treating each as its own user",
				Value: true,
			},
		},
		Action: r.Serve,
	}
}

// sessionCommand manages ks sessions of the development record service.
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage development service sessions",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Map a ks to a user",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ks"},
					&cli.StringArg{Name: "user"},
				},
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Session lifetime; 0 never expires",
					},
				},
				Action: r.SessionAdd,
			},
			{
				Name:  "remove",
				Usage: "Delete a session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ks"},
				},
				Action: r.SessionRemove,
			},
		},
	}
}

// exportCommand writes the development service's records to a file.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export stored view-history records (csv, json or text by extension)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "Only export this user's records",
			},
			&cli.StringFlag{
				Name:  "entry",
				Usage: "Only export records for this entry",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path; prints to stdout when empty",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format when printing (text, json, csv)",
				Value: "text",
			},
		},
		Action: r.Export,
	}
}
