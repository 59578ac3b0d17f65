// Package printer writes the CLI's human-facing status lines.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"sprintbook/internal/availability"
	"sprintbook/internal/engine"
	"sprintbook/internal/slots"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Out and Err are swapped in tests.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

// Success prints a green line with a checkmark.
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// Step prints an emphasized progress line.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Printf writes plain output.
func Printf(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Error prints a titled error with an explanation and numbered suggestions to
// Err and returns an error carrying only the title.
func Error(title, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

func ErrorWithContext(title, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(Err)
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, context[k])
		}
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(Err)
		if len(suggestions) == 1 {
			fmt.Fprintf(Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(Err, "Either:\n")
			for i, s := range suggestions {
				fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
			}
		}
	}
	return fmt.Errorf("%s", title)
}

// BookingError renders an engine error with a hint matching its kind.
// Errors of other kinds are returned unchanged.
func BookingError(err error) error {
	if err == nil {
		return nil
	}
	switch engine.Kind(err) {
	case engine.KindSlotConflict:
		return Error("Sprint already taken", err.Error(), []string{"Run `sb availability` to see what is still free, then pick again."})
	case engine.KindCapExceeded:
		return Error("Over the tribe's cap", err.Error(), []string{"Release a sprint you hold or ask for a larger reservation."})
	case engine.KindValidation:
		return Error("Request rejected", err.Error(), nil)
	case engine.KindNotFound:
		return Error("Not found", err.Error(), []string{"Check the id with `sb assignment list` or `sb temp list`."})
	case engine.KindTransient:
		return Error("Storage busy", err.Error(), []string{"Retry the command; nothing was written."})
	}
	return err
}

// Slots renders a vector as S1..S6 cells: mine green, blocked red, free faint.
func Slots(mine, blocked slots.Vector) string {
	cells := make([]string, 0, slots.Count)
	for i := 1; i <= slots.Count; i++ {
		label := fmt.Sprintf("S%d", i)
		switch {
		case mine.Has(i):
			cells = append(cells, green.Sprint(label))
		case blocked.Has(i):
			cells = append(cells, red.Sprint(label))
		default:
			cells = append(cells, faint.Sprint(label))
		}
	}
	return strings.Join(cells, " ")
}

// Availability prints a one-screen summary of an availability result.
func Availability(r availability.Result) {
	fmt.Fprintf(Out, "%s on %s/%s (%s)\n", r.Key.Tribe, r.Key.ResourceName, r.Key.Role, r.AssignType)
	fmt.Fprintf(Out, "  %s\n", Slots(r.Mine, r.Blocked))
	fmt.Fprintf(Out, "  booked %d of %d, %d remaining\n", r.BookedByTribe, r.CapPerTribe, r.Remaining())
	for i, tribes := range r.TakenBy {
		if len(tribes) > 0 {
			fmt.Fprintf(Out, "  S%d: %s\n", i+1, strings.Join(tribes, ", "))
		}
	}
}
