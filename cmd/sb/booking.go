package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintbook/internal/app"
	"sprintbook/internal/domain"
	"sprintbook/internal/engine"
	"sprintbook/internal/export"
	"sprintbook/internal/printer"
	"sprintbook/internal/repo"
	"sprintbook/internal/slots"
)

// parseSprints reads "1,3,5" or "1 3 5" into 1-based ordinals.
func parseSprints(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(f)), "S"))
		if err != nil || !slots.ValidSprint(n) {
			return nil, fmt.Errorf("invalid sprint %q (want 1-%d)", f, slots.Count)
		}
		out = append(out, n)
	}
	return out, nil
}

type filterFlags struct {
	tribe, app, resource, role, typ string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tribe, "filter-tribe", "", "tribe contains")
	cmd.Flags().StringVar(&f.app, "app", "", "app contains")
	cmd.Flags().StringVar(&f.resource, "resource", "", "resource contains")
	cmd.Flags().StringVar(&f.role, "role", "", "role contains")
	cmd.Flags().StringVar(&f.typ, "type", "", "assignment type contains")
}

func (f filterFlags) assignments(quarterID string) repo.AssignmentFilters {
	return repo.AssignmentFilters{QuarterID: quarterID, Tribe: f.tribe, App: f.app, Resource: f.resource, Role: f.role, Type: f.typ}
}

func (f filterFlags) temps(quarterID string) repo.TempFilters {
	return repo.TempFilters{QuarterID: quarterID, Tribe: f.tribe, App: f.app, Resource: f.resource, Role: f.role, Type: f.typ}
}

func assignmentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignment", Aliases: []string{"assignments"}, Short: "Inspect and edit assignments"}
	cmd.AddCommand(assignmentListCmd())
	cmd.AddCommand(assignmentGetCmd())
	cmd.AddCommand(assignmentSetCmd())
	return cmd
}

func assignmentListCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments in the quarter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := app.ResolveQuarter(ctx, e.Repo, viper.GetString("quarter"))
				if err != nil {
					return err
				}
				items, err := e.Repo.ListAssignments(ctx, f.assignments(q.ID))
				if err != nil {
					return err
				}
				return printJSONOrTable(items, export.AssignmentsTable(items))
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func assignmentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAssignment(ctx, args[0])
				if err != nil {
					return printer.BookingError(fmt.Errorf("assignment %s: %w", args[0], err))
				}
				return printJSONOrTable(a, export.AssignmentsTable([]domain.Assignment{a}))
			})
		},
	}
}

func assignmentSetCmd() *cobra.Command {
	var sprints string
	var clear bool
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Replace an assignment's sprints",
		Long:  "Replace the sprints held by an assignment. --sprints lists every sprint to hold afterwards; --clear releases all.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tribe, err := actingTribe()
			if err != nil {
				return err
			}
			var list []int
			if !clear {
				if list, err = parseSprints(sprints); err != nil {
					return err
				}
				if len(list) == 0 {
					return fmt.Errorf("--sprints or --clear is required")
				}
			}
			proposed, err := slots.FromSprints(list)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CommitSlots(ctx, args[0], proposed, tribe)
				if err != nil {
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(res.Assignment)
				}
				if res.Unchanged {
					printer.Warning("No change: %s already holds %s", res.Assignment.Tribe, res.Assignment.Slots)
				} else {
					printer.Success("%s now holds %s on %s/%s", res.Assignment.Tribe, res.Assignment.Slots, res.Assignment.ResourceName, res.Assignment.Role)
				}
				printer.Availability(res.Availability)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sprints, "sprints", "", "sprints to hold, e.g. 1,2,5")
	cmd.Flags().BoolVar(&clear, "clear", false, "release every sprint")
	return cmd
}

func tempCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "temp", Short: "Temp holds and booking confirmation"}
	cmd.AddCommand(tempListCmd())
	cmd.AddCommand(tempShowCmd())
	cmd.AddCommand(tempBookCmd())
	return cmd
}

func tempListCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List temp holds in the quarter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := app.ResolveQuarter(ctx, e.Repo, viper.GetString("quarter"))
				if err != nil {
					return err
				}
				items, err := e.Repo.ListTempAssignments(ctx, f.temps(q.ID))
				if err != nil {
					return err
				}
				return printJSONOrTable(items, export.TempsTable(items))
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func tempShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a temp hold with live availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.TempDetail(ctx, args[0])
				if err != nil {
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := export.TempsTable([]domain.TempAssignment{d.Temp})
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.Render()
				printer.Availability(d.Availability)
				printer.Step("Tribes allowed on this resource: %s", strings.Join(d.AllowedTribes, ", "))
				return nil
			})
		},
	}
}

func tempBookCmd() *cobra.Command {
	var sprints string
	cmd := &cobra.Command{
		Use:   "book <temp-id>",
		Short: "Book sprints against a temp hold",
		Long:  "Adds the chosen sprints to the tribe's assignment for the hold, creating it on first booking. Sprints already held are ignored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tribe, err := actingTribe()
			if err != nil {
				return err
			}
			chosen, err := parseSprints(sprints)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ConfirmBooking(ctx, args[0], chosen, tribe)
				if err != nil {
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(res.Assignment)
				}
				if res.Unchanged {
					printer.Warning("Nothing to book: %s already holds those sprints", tribe)
				} else {
					printer.Success("Booked %s for %s (%s)", res.Assignment.Slots, tribe, res.Assignment.App)
				}
				printer.Availability(res.Availability)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sprints, "sprints", "", "sprints to book, e.g. 1,2")
	_ = cmd.MarkFlagRequired("sprints")
	return cmd
}

func availabilityCmd() *cobra.Command {
	var resource, role string
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show what the tribe can pick on a resource/role",
		RunE: func(cmd *cobra.Command, args []string) error {
			tribe, err := actingTribe()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := app.ResolveQuarter(ctx, e.Repo, viper.GetString("quarter"))
				if err != nil {
					return err
				}
				res, err := e.Availability(ctx, q.ID, slots.TribeKey{Tribe: tribe, ResourceName: resource, Role: role})
				if err != nil {
					return printer.BookingError(err)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"tribe":           tribe,
						"resource_name":   resource,
						"role":            role,
						"assign_type":     res.AssignType,
						"blocked":         res.Blocked.Ints(),
						"mine":            res.Mine.Ints(),
						"cap_per_tribe":   res.CapPerTribe,
						"booked_by_tribe": res.BookedByTribe,
						"remaining":       res.Remaining(),
						"taken_by":        res.TakenBy,
					})
				}
				printer.Availability(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "resource name")
	cmd.Flags().StringVar(&role, "role", "", "role")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

// quartersTable lists quarters with the current one marked.
func quartersTable(items []domain.Quarter) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Name", "Current", "Created"})
	for _, q := range items {
		mark := ""
		if q.IsCurrent {
			mark = "*"
		}
		tw.AppendRow(table.Row{q.ID, q.Name, mark, q.CreatedAt})
	}
	return tw
}
