// Package scenariorun replays a scenario end to end, prints the derived state,
// and checks the scenario's declared expectations.
package scenariorun

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	i18n "github.com/isoviz/isoviz/internal/platform/i18n/catalog"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
	"github.com/isoviz/isoviz/internal/scenario/catalog"
	luascenario "github.com/isoviz/isoviz/internal/scenario/lua"
)

// Config controls scenario execution.
type Config struct {
	// Step caps the replay at a specific step; negative means run to the end.
	Step       int
	Locale     string
	Assertions AssertionMode
	Verbose    bool
	Logger     *log.Logger
	Out        io.Writer
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() Config {
	return Config{
		Step:       -1,
		Locale:     i18n.BaseLocale,
		Assertions: AssertionStrict,
		Verbose:    false,
	}
}

// Runner replays scenarios and checks their expectations.
type Runner struct {
	step       int
	locale     string
	assertions Assertions
	logger     *log.Logger
	verbose    bool
	out        io.Writer
	bundle     *i18n.Bundle
}

// NewRunner prepares a runner, applying config defaults.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	locale := cfg.Locale
	if locale == "" {
		locale = i18n.BaseLocale
	}
	return &Runner{
		step:       cfg.Step,
		locale:     locale,
		assertions: Assertions{Mode: cfg.Assertions, Logger: logger},
		logger:     logger,
		verbose:    cfg.Verbose,
		out:        out,
		bundle:     i18n.Default(),
	}
}

// RunFile loads a Lua scenario script and replays it.
func (r *Runner) RunFile(path string) error {
	scn, err := luascenario.LoadFile(path)
	if err != nil {
		return err
	}
	return r.RunScenario(scn)
}

// RunBuiltin replays one of the built-in scenarios.
func (r *Runner) RunBuiltin(id string) error {
	scn, err := catalog.Get(id)
	if err != nil {
		return err
	}
	return r.RunScenario(scn)
}

// RunScenario replays the scenario step by step up to the configured step,
// prints the final derived state, and checks expectations when the run
// reaches the end of the timeline.
func (r *Runner) RunScenario(scn *scenario.Scenario) error {
	if scn == nil {
		return r.assertions.Failf("scenario is required")
	}
	if err := scn.Validate(); err != nil {
		return err
	}

	total := scn.StepCount()
	target := r.step
	if target < 0 || target > total {
		target = total
	}
	r.logf("scenario start: %s (%d/%d steps)", scn.ID, target, total)

	merged := scn.Merge()
	var state *replay.State
	for step := 1; step <= target; step++ {
		var err error
		state, err = replay.Reduce(scn, step)
		if err != nil {
			return err
		}
		op := merged[step-1]
		r.logf("step %d/%d: %s %s", step, total, op.ActorID, describeOp(op.Op))
		if state.Moment != nil {
			r.logf("  moment: %s", r.message(state.Moment.TitleKey))
		}
	}
	if state == nil {
		var err error
		state, err = replay.Reduce(scn, 0)
		if err != nil {
			return err
		}
	}

	r.printState(scn, state)
	r.logf("scenario done: %s", scn.ID)

	if target == total {
		return r.checkExpectations(scn, state)
	}
	return nil
}

func (r *Runner) checkExpectations(scn *scenario.Scenario, state *replay.State) error {
	items := make([]string, 0, len(scn.Expect.Items))
	for item := range scn.Expect.Items {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		want := scn.Expect.Items[item]
		if got := state.Committed[item]; got != want {
			if err := r.assertions.Assertf("%s: committed %s = %d, expected %d", scn.ID, item, got, want); err != nil {
				return err
			}
		}
	}

	if len(scn.Expect.RowIDs) > 0 {
		got := make([]int64, 0, len(state.Rows))
		for _, row := range state.Rows {
			got = append(got, row.ID)
		}
		if !equalIDs(got, scn.Expect.RowIDs) {
			if err := r.assertions.Assertf("%s: committed rows %v, expected %v", scn.ID, got, scn.Expect.RowIDs); err != nil {
				return err
			}
		}
	}
	return nil
}

// printState writes the derived state through the locale's printer so item
// values pick up locale-aware digit grouping.
func (r *Runner) printState(scn *scenario.Scenario, state *replay.State) {
	p := r.bundle.Printer(r.locale)
	p.Fprintf(r.out, "%s — %s [step %d/%d]\n", scn.ID, r.message(scn.NameKey), state.Step, scn.StepCount())

	items := make([]string, 0, len(state.Committed))
	for item := range state.Committed {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		p.Fprintf(r.out, "  committed %s = %d\n", item, state.Committed[item])
	}
	for _, row := range state.Rows {
		p.Fprintf(r.out, "  row %d: %s (%s)\n", row.ID, row.Name, row.Dept)
	}
	for _, item := range items {
		for _, v := range state.Versions[item] {
			p.Fprintf(r.out, "  version %s#%d = %d (creator %d, invalidator %d)\n",
				item, v.ID, v.Value, v.Creator, v.Invalidator)
		}
	}
	for _, id := range state.ActorOrder {
		actor := state.Actors[id]
		p.Fprintf(r.out, "  actor %s: %s", id, actor.Status)
		for _, read := range actor.Reads {
			p.Fprintf(r.out, " read(%s=%d)", read.Item, read.Value)
		}
		for _, scan := range actor.Scans {
			p.Fprintf(r.out, " scan(%s: %d rows)", scan.Predicate, len(scan.Rows))
		}
		fmt.Fprintln(r.out)
	}
	if state.Moment != nil {
		p.Fprintf(r.out, "  moment: %s\n", r.message(state.Moment.TitleKey))
	}
}

// message resolves a catalog key in the runner's locale, falling back to the
// raw key for ad-hoc Lua scenarios that carry no catalog entries.
func (r *Runner) message(key string) string {
	if value, ok := r.bundle.Message(r.locale, key); ok {
		return value
	}
	return key
}

func (r *Runner) logf(format string, args ...any) {
	if !r.verbose || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}

func describeOp(op scenario.Operation) string {
	switch op.Type {
	case scenario.OpRead:
		return fmt.Sprintf("read %s", op.Item)
	case scenario.OpWrite:
		return fmt.Sprintf("write %s %+d", op.Item, op.Delta)
	case scenario.OpInsert:
		return fmt.Sprintf("insert row %d", op.Row.ID)
	case scenario.OpScan:
		return fmt.Sprintf("scan dept=%s", op.Predicate)
	default:
		return string(op.Type)
	}
}

func equalIDs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
