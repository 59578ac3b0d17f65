package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"sprintbook/internal/app"
	"sprintbook/internal/config"
	"sprintbook/internal/domain"
	"sprintbook/internal/engine"
	"sprintbook/internal/export"
	"sprintbook/internal/notify"
	"sprintbook/internal/printer"
	"sprintbook/internal/provision"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage sprintbook.yml"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default sprintbook.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return printer.Error("Config already exists", path, []string{"Edit it directly or remove it first."})
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			printer.Success("Wrote %s", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate sprintbook.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return printer.Error("Invalid config", err.Error(), nil)
			}
			printer.Success("Config OK")
			return nil
		},
	})
	return cmd
}

func quarterCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "quarter", Short: "Manage quarters"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List quarters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListQuarters(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, quartersTable(items))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the current quarter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.CurrentQuarter(ctx)
				if err != nil {
					return printer.BookingError(err)
				}
				return printJSONOrTable(q, quartersTable([]domain.Quarter{q}))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Make a quarter current, creating it when new",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.SetCurrentQuarter(ctx, args[0])
				if err != nil {
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				printer.Success("Current quarter is %s", q.Name)
				return nil
			})
		},
	})
	return cmd
}

func readSheet(path, format string) ([]provision.Row, error) {
	if format == "" {
		format = filepath.Base(path)
	}
	f, err := provision.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return provision.Parse(file, f)
}

func conflictsTable(conflicts []provision.Conflict) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Resource", "Reserved", "Rows"})
	for _, c := range conflicts {
		tw.AppendRow(table.Row{c.Resource, c.TotalReserved, joinLines(c.Rows)})
	}
	return tw
}

func joinLines(lines []int) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(l)
	}
	return out
}

func provisionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{Use: "provision", Short: "Validate and import provisioning sheets"}
	cmd.PersistentFlags().StringVar(&format, "format", "", "sheet format (csv, yaml); inferred from the file name when empty")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a sheet for over-reserved resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readSheet(args[0], format)
			if err != nil {
				return err
			}
			check := provision.Check(rows)
			if viper.GetBool("json") {
				return printJSON(check)
			}
			if check.OK {
				printer.Success("%d rows, no conflicts", len(check.Rows))
				return nil
			}
			tw := conflictsTable(check.Conflicts)
			tw.SetOutputMirror(os.Stdout)
			tw.Render()
			return printer.Error("Provisioning conflicts", "Each resource has only 6 sprints per quarter.", []string{"Lower reserved_sprints on the listed rows."})
		},
	})

	var replace bool
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a sheet into the quarter's temp holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readSheet(args[0], format)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := app.ResolveQuarter(ctx, e.Repo, viper.GetString("quarter"))
				if err != nil {
					return err
				}
				res, err := e.ImportTempAssignments(ctx, q.ID, rows, replace)
				if err != nil {
					if len(res.Validation.Conflicts) > 0 && !viper.GetBool("json") {
						tw := conflictsTable(res.Validation.Conflicts)
						tw.SetOutputMirror(os.Stdout)
						tw.Render()
					}
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Archived != "" {
					printer.Step("Previous holds archived to %s", res.Archived)
				}
				if replace {
					printer.Step("Cleared %d previous holds", res.Cleared)
				}
				printer.Success("Imported %d temp holds into %s", res.Imported, q.Name)
				return nil
			})
		},
	}
	importCmd.Flags().BoolVar(&replace, "replace", false, "archive and remove the quarter's existing holds first")
	cmd.AddCommand(importCmd)
	return cmd
}

func exportCmd() *cobra.Command {
	var f filterFlags
	var format, out string
	var toArchive bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the quarter's assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtOut, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := app.ResolveQuarter(ctx, e.Repo, viper.GetString("quarter"))
				if err != nil {
					return err
				}
				if toArchive {
					loc, err := e.ArchiveQuarter(ctx, q.ID)
					if err != nil {
						return printer.BookingError(err)
					}
					printer.Success("Archived %s to %s", q.Name, loc)
					return nil
				}
				rows, err := e.ExportRows(ctx, f.assignments(q.ID))
				if err != nil {
					return printer.BookingError(err)
				}
				w := os.Stdout
				if out != "" {
					file, err := os.Create(out)
					if err != nil {
						return err
					}
					defer file.Close()
					w = file
				}
				if err := export.WriteAssignments(w, rows, fmtOut); err != nil {
					return err
				}
				if out != "" {
					printer.Success("Wrote %d assignments to %s", len(rows), out)
				}
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv, json, table or markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&toArchive, "archive", false, "write the full quarter to the archive store")
	return cmd
}

func logCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{Use: "log", Short: "Booking event log"}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Tribe", "Entity", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.Tribe, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				return printJSONOrTable(items, tw)
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type")
	tail.Flags().StringVar(&entityID, "entity", "", "entity id")
	cmd.AddCommand(tail)
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream committed slot changes from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Notify.Enabled() {
				return printer.Error("Notifications disabled", "notify.redis_addr is not set in sprintbook.yml.", nil)
			}
			r := notify.NewRedis(cfg.Notify)
			defer r.Close()
			changes, err := r.Subscribe(cmd.Context())
			if err != nil {
				return err
			}
			printer.Step("Watching %s (Ctrl-C to stop)", r.Channel)
			for c := range changes {
				if viper.GetBool("json") {
					if err := printJSON(c); err != nil {
						return err
					}
					continue
				}
				printer.Printf("%s %s %s/%s now %v\n", c.TS, c.Tribe, c.ResourceName, c.Role, c.Sprints)
			}
			if err := cmd.Context().Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
