// Package catalog holds the built-in teaching scenarios. Each constructor
// returns a fresh value so callers can never corrupt the shared definitions.
package catalog

import (
	"fmt"
	"sort"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/scenario"
)

var builders = map[string]func() *scenario.Scenario{
	"lost-update":     LostUpdate,
	"phantom-read":    PhantomRead,
	"mvcc-visibility": MVCCVisibility,
	"mvcc-abort":      MVCCAbort,
}

// IDs returns the built-in scenario ids in stable order.
func IDs() []string {
	ids := make([]string, 0, len(builders))
	for id := range builders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns fresh copies of every built-in scenario, ordered by id.
func All() []*scenario.Scenario {
	out := make([]*scenario.Scenario, 0, len(builders))
	for _, id := range IDs() {
		out = append(out, builders[id]())
	}
	return out
}

// Get returns a fresh copy of the built-in scenario with the given id.
func Get(id string) (*scenario.Scenario, error) {
	build, ok := builders[id]
	if !ok {
		return nil, errors.WithMetadata(errors.CodeScenarioNotFound,
			fmt.Sprintf("no built-in scenario %q", id),
			map[string]string{"scenario": id})
	}
	return build(), nil
}

// LostUpdate scripts the classic lost-update anomaly: T2's commit, computed
// from a read taken before T1 committed, overwrites T1's update. The final
// balance is 150, not the 130 both updates together would have produced.
func LostUpdate() *scenario.Scenario {
	return &scenario.Scenario{
		ID:           "lost-update",
		NameKey:      "scenario.lost-update.name",
		SummaryKey:   "scenario.lost-update.summary",
		Isolation:    scenario.IsolationReadCommitted,
		InitialItems: map[string]int64{"Balance": 100},
		Actors: []scenario.Actor{
			{ID: "T1", Color: "#3b82f6", Operations: []scenario.Operation{
				{Time: 1, Type: scenario.OpBegin},
				{Time: 3, Type: scenario.OpRead, Item: "Balance"},
				{Time: 5, Type: scenario.OpWrite, Item: "Balance", Delta: -20},
				{Time: 7, Type: scenario.OpCommit},
			}},
			{ID: "T2", Color: "#f59e0b", Operations: []scenario.Operation{
				{Time: 2, Type: scenario.OpBegin},
				{Time: 4, Type: scenario.OpRead, Item: "Balance"},
				{Time: 6, Type: scenario.OpWrite, Item: "Balance", Delta: 50},
				{Time: 8, Type: scenario.OpCommit},
			}},
		},
		Moments: []scenario.KeyMoment{
			{Step: 4, TitleKey: "moment.lost-update.stale-read.title",
				BodyKey: "moment.lost-update.stale-read.body",
				Highlights: []string{"T1", "T2", "Balance"}, AutoPause: true},
			{Step: 7, TitleKey: "moment.lost-update.first-commit.title",
				BodyKey: "moment.lost-update.first-commit.body",
				Highlights: []string{"T1", "Balance"}, AutoPause: true},
			{Step: 8, TitleKey: "moment.lost-update.overwrite.title",
				BodyKey: "moment.lost-update.overwrite.body",
				Highlights: []string{"T2", "Balance"}, AutoPause: true},
		},
		Expect: scenario.Expectation{Items: map[string]int64{"Balance": 150}},
	}
}

// PhantomRead scripts a phantom row: T1's second scan of the same predicate
// sees the row T2 inserted and committed between the two scans.
func PhantomRead() *scenario.Scenario {
	return &scenario.Scenario{
		ID:         "phantom-read",
		NameKey:    "scenario.phantom-read.name",
		SummaryKey: "scenario.phantom-read.summary",
		Isolation:  scenario.IsolationReadCommitted,
		InitialRows: []scenario.Row{
			{ID: 1, Name: "Alice", Dept: "Engineering"},
			{ID: 2, Name: "Bob", Dept: "Marketing"},
			{ID: 4, Name: "David", Dept: "Engineering"},
		},
		Actors: []scenario.Actor{
			{ID: "T1", Color: "#3b82f6", Operations: []scenario.Operation{
				{Time: 1, Type: scenario.OpBegin},
				{Time: 2, Type: scenario.OpScan, Predicate: "Engineering"},
				{Time: 6, Type: scenario.OpScan, Predicate: "Engineering"},
				{Time: 7, Type: scenario.OpCommit},
			}},
			{ID: "T2", Color: "#f59e0b", Operations: []scenario.Operation{
				{Time: 3, Type: scenario.OpBegin},
				{Time: 4, Type: scenario.OpInsert, Row: scenario.Row{ID: 3, Name: "Charlie", Dept: "Engineering"}},
				{Time: 5, Type: scenario.OpCommit},
			}},
		},
		Moments: []scenario.KeyMoment{
			{Step: 2, TitleKey: "moment.phantom-read.first-scan.title",
				BodyKey: "moment.phantom-read.first-scan.body",
				Highlights: []string{"T1"}, AutoPause: true},
			{Step: 5, TitleKey: "moment.phantom-read.insert-commit.title",
				BodyKey: "moment.phantom-read.insert-commit.body",
				Highlights: []string{"T2"}, AutoPause: true},
			{Step: 6, TitleKey: "moment.phantom-read.phantom.title",
				BodyKey: "moment.phantom-read.phantom.body",
				Highlights: []string{"T1"}, AutoPause: true},
		},
		Expect: scenario.Expectation{RowIDs: []int64{1, 2, 3, 4}},
	}
}

// MVCCVisibility scripts snapshot stability: T3 begins before T1 and T2
// commit, so T3's reads keep resolving the bootstrap versions even after the
// newer versions are committed.
func MVCCVisibility() *scenario.Scenario {
	return &scenario.Scenario{
		ID:           "mvcc-visibility",
		NameKey:      "scenario.mvcc-visibility.name",
		SummaryKey:   "scenario.mvcc-visibility.summary",
		Isolation:    scenario.IsolationSnapshot,
		InitialItems: map[string]int64{"DataA": 100, "DataB": 200},
		Actors: []scenario.Actor{
			{ID: "T1", Color: "#3b82f6", Operations: []scenario.Operation{
				{Time: 1, Type: scenario.OpBegin},
				{Time: 4, Type: scenario.OpRead, Item: "DataA"},
				{Time: 5, Type: scenario.OpWrite, Item: "DataA", Delta: 10},
				{Time: 6, Type: scenario.OpCommit},
			}},
			{ID: "T2", Color: "#f59e0b", Operations: []scenario.Operation{
				{Time: 2, Type: scenario.OpBegin},
				{Time: 7, Type: scenario.OpRead, Item: "DataB"},
				{Time: 8, Type: scenario.OpWrite, Item: "DataB", Delta: 10},
				{Time: 9, Type: scenario.OpCommit},
			}},
			{ID: "T3", Color: "#10b981", Operations: []scenario.Operation{
				{Time: 3, Type: scenario.OpBegin},
				{Time: 10, Type: scenario.OpRead, Item: "DataA"},
				{Time: 11, Type: scenario.OpRead, Item: "DataB"},
				{Time: 12, Type: scenario.OpCommit},
			}},
		},
		Moments: []scenario.KeyMoment{
			{Step: 3, TitleKey: "moment.mvcc-visibility.snapshot.title",
				BodyKey: "moment.mvcc-visibility.snapshot.body",
				Highlights: []string{"T3"}, AutoPause: true},
			{Step: 6, TitleKey: "moment.mvcc-visibility.t1-commit.title",
				BodyKey: "moment.mvcc-visibility.t1-commit.body",
				Highlights: []string{"T1", "DataA"}, AutoPause: true},
			{Step: 10, TitleKey: "moment.mvcc-visibility.stale-read.title",
				BodyKey: "moment.mvcc-visibility.stale-read.body",
				Highlights: []string{"T3", "DataA"}, AutoPause: true},
			{Step: 11, TitleKey: "moment.mvcc-visibility.second-read.title",
				BodyKey: "moment.mvcc-visibility.second-read.body",
				Highlights: []string{"T3", "DataB"}, AutoPause: true},
		},
		Expect: scenario.Expectation{Items: map[string]int64{"DataA": 110, "DataB": 210}},
	}
}

// MVCCAbort scripts the abort path: T2 stages a new version of DataA and then
// aborts, so its invalidation mark is cleared and readers keep resolving the
// original version.
func MVCCAbort() *scenario.Scenario {
	return &scenario.Scenario{
		ID:           "mvcc-abort",
		NameKey:      "scenario.mvcc-abort.name",
		SummaryKey:   "scenario.mvcc-abort.summary",
		Isolation:    scenario.IsolationSnapshot,
		InitialItems: map[string]int64{"DataA": 100},
		Actors: []scenario.Actor{
			{ID: "T1", Color: "#3b82f6", Operations: []scenario.Operation{
				{Time: 1, Type: scenario.OpBegin},
				{Time: 5, Type: scenario.OpRead, Item: "DataA"},
				{Time: 7, Type: scenario.OpRead, Item: "DataA"},
				{Time: 8, Type: scenario.OpCommit},
			}},
			{ID: "T2", Color: "#f59e0b", Operations: []scenario.Operation{
				{Time: 2, Type: scenario.OpBegin},
				{Time: 3, Type: scenario.OpRead, Item: "DataA"},
				{Time: 4, Type: scenario.OpWrite, Item: "DataA", Delta: 80},
				{Time: 6, Type: scenario.OpAbort},
			}},
		},
		Moments: []scenario.KeyMoment{
			{Step: 4, TitleKey: "moment.mvcc-abort.staged-write.title",
				BodyKey: "moment.mvcc-abort.staged-write.body",
				Highlights: []string{"T2", "DataA"}, AutoPause: true},
			{Step: 5, TitleKey: "moment.mvcc-abort.invisible.title",
				BodyKey: "moment.mvcc-abort.invisible.body",
				Highlights: []string{"T1", "DataA"}, AutoPause: true},
			{Step: 6, TitleKey: "moment.mvcc-abort.abort.title",
				BodyKey: "moment.mvcc-abort.abort.body",
				Highlights: []string{"T2", "DataA"}, AutoPause: true},
		},
		Expect: scenario.Expectation{Items: map[string]int64{"DataA": 100}},
	}
}
