package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ksred/schema-guard/internal/api"
	"github.com/ksred/schema-guard/internal/associations"
	"github.com/ksred/schema-guard/internal/database"
	"github.com/urfave/cli/v3"
)

func (a *app) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply all pending migrations as one batch",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force-unlock",
				Usage: "clear a lock left behind by a crashed runner before migrating",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runner, err := a.runner()
			if err != nil {
				return err
			}

			result, err := database.Startup(ctx, runner, database.StartupOptions{
				AutoMigrate: true,
				ForceUnlock: cmd.Bool("force-unlock") || a.cfg.Migrations.ForceUnlock,
			}, a.logger)
			if result != nil && (err == nil || len(result.Applied) > 0) {
				printApplied(cmd.Root().Writer, result)
			}
			return err
		},
	}
}

func (a *app) rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Revert the most recent batches, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "steps",
				Usage: "number of batches to revert",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runner, err := a.runner()
			if err != nil {
				return err
			}
			if err := runner.Setup(ctx); err != nil {
				return err
			}

			result, err := runner.Rollback(ctx, int(cmd.Int("steps")))
			if result != nil {
				for _, name := range result.RolledBack {
					fmt.Fprintf(cmd.Root().Writer, "rolled back %s\n", name)
				}
				if len(result.RolledBack) == 0 && err == nil {
					fmt.Fprintln(cmd.Root().Writer, "nothing to roll back")
				}
			}
			return err
		},
	}
}

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show applied and pending migrations and the lock state",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print status as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runner, err := a.runner()
			if err != nil {
				return err
			}
			if err := runner.Setup(ctx); err != nil {
				return err
			}

			status, err := runner.Status(ctx)
			if err != nil {
				return err
			}

			if cmd.Bool("json") {
				enc := json.NewEncoder(cmd.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			printStatus(cmd.Root().Writer, status)
			return nil
		},
	}
}

func (a *app) unlockCommand() *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "Force-release the migration lock",
		Description: `Only use this when the runner holding the lock is known to be gone,
for example after it was killed with SIGKILL.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runner, err := a.runner()
			if err != nil {
				return err
			}
			if err := runner.Setup(ctx); err != nil {
				return err
			}
			if err := runner.LockManager().ForceUnlock(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "migration lock released")
			return nil
		},
	}
}

func (a *app) checkCommand() *cli.Command {
	return &cli.Command{
		Name:        "check",
		Usage:       "Check the association graph for missing belongsTo declarations",
		Description: `Reads the graph from models.graph_file. The database is not touched.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if a.cfg.Models.GraphFile == "" {
				return fmt.Errorf("no model graph configured (models.graph_file or MODEL_GRAPH_FILE)")
			}

			graph, err := associations.LoadFile(a.cfg.Models.GraphFile)
			if err != nil {
				return err
			}

			violations := associations.Check(graph)
			for _, v := range violations {
				fmt.Fprintf(cmd.Root().Writer, "%s: %s\n", v.TableName, v.Message)
			}
			if len(violations) == 0 {
				fmt.Fprintf(cmd.Root().Writer, "%d models consistent\n", graph.Len())
			}
			return violations.Err()
		},
	}
}

func (a *app) tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a bearer token for the admin HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subject",
				Usage:    "operator the token is issued to",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "token lifetime",
				Value: time.Hour,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, expiresAt, err := api.IssueToken(a.cfg.JWT.Secret, cmd.String("subject"), cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("subject", cmd.String("subject")).
				Time("expires_at", expiresAt).
				Msg("Issued admin token")
			fmt.Fprintln(cmd.Root().Writer, token)
			return nil
		},
	}
}

func printApplied(w io.Writer, result *database.MigrateResult) {
	if len(result.Applied) == 0 {
		fmt.Fprintln(w, "schema is up to date")
		return
	}
	for _, name := range result.Applied {
		fmt.Fprintf(w, "applied %s (batch %d)\n", name, result.Batch)
	}
}

func printStatus(w io.Writer, status *database.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tSTATE\tBATCH")
	for _, m := range status.Migrations {
		state, batch := "pending", "-"
		if m.Applied {
			state, batch = "applied", fmt.Sprint(m.Batch)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name, state, batch)
	}
	for _, name := range status.Unknown {
		fmt.Fprintf(tw, "%s\tunknown\t-\n", name)
	}
	tw.Flush()

	lock := "free"
	if status.Locked {
		lock = "held"
	}
	fmt.Fprintf(w, "\nlast batch: %d, lock: %s\n", status.LastBatch, lock)
}
