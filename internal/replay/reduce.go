package replay

import (
	"fmt"
	"sort"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/scenario"
)

// Reduce computes the derived state of the scenario at the given step by
// folding the first step operations of the merged sequence over the declared
// initial state. Step 0 is the initial state; the maximum step is the merged
// sequence length. Reduce never mutates long-lived state between calls: the
// runtime-id and version-id counters live in the call frame, so two calls
// with the same arguments produce identical output.
func Reduce(s *scenario.Scenario, step int) (*State, error) {
	total := s.StepCount()
	if step < 0 || step > total {
		return nil, errors.WithMetadata(errors.CodeReplayStepOutOfRange,
			fmt.Sprintf("step %d outside 0..%d", step, total),
			map[string]string{
				"scenario": s.ID,
				"step":     fmt.Sprint(step),
				"total":    fmt.Sprint(total),
			})
	}

	r := &reducer{
		scn:           s,
		state:         initialState(s),
		nextRuntimeID: 1,
		nextVersionID: 1,
	}
	if s.Isolation == scenario.IsolationSnapshot {
		r.seedVersions()
	}

	merged := s.Merge()
	for i := 0; i < step; i++ {
		r.apply(merged[i])
	}

	r.state.Step = step
	if moment, ok := s.MomentAt(step); ok {
		r.state.Moment = &moment
	}
	return r.state, nil
}

// reducer holds the fold in progress. The id counters are reset for every
// Reduce call; nothing here survives between recomputations.
type reducer struct {
	scn           *scenario.Scenario
	state         *State
	nextRuntimeID int
	nextVersionID int
}

func initialState(s *scenario.Scenario) *State {
	state := &State{
		Committed:    make(map[string]int64, len(s.InitialItems)),
		CommittedSet: []int{0},
		Actors:       make(map[string]*ActorState, len(s.Actors)),
	}
	for item, value := range s.InitialItems {
		state.Committed[item] = value
	}
	if len(s.InitialRows) > 0 {
		state.Rows = append([]scenario.Row(nil), s.InitialRows...)
		sort.Slice(state.Rows, func(i, j int) bool { return state.Rows[i].ID < state.Rows[j].ID })
	}
	for _, actor := range s.Actors {
		state.Actors[actor.ID] = &ActorState{ID: actor.ID, Status: StatusPending}
		state.ActorOrder = append(state.ActorOrder, actor.ID)
	}
	return state
}

// seedVersions creates the bootstrap version of every item, credited to
// runtime id 0. Items are seeded in name order so version ids are stable.
func (r *reducer) seedVersions() {
	items := make([]string, 0, len(r.scn.InitialItems))
	for item := range r.scn.InitialItems {
		items = append(items, item)
	}
	sort.Strings(items)

	r.state.Versions = make(map[string][]Version, len(items))
	for _, item := range items {
		r.state.Versions[item] = []Version{{
			ID:      r.nextVersionID,
			Value:   r.scn.InitialItems[item],
			Creator: 0,
		}}
		r.nextVersionID++
	}
}

func (r *reducer) apply(step scenario.Step) {
	actor := r.state.Actors[step.ActorID]
	op := step.Op
	stepNum := step.Index + 1

	switch op.Type {
	case scenario.OpBegin:
		r.begin(actor)
	case scenario.OpRead:
		r.read(actor, op, stepNum)
	case scenario.OpWrite:
		r.write(actor, op)
	case scenario.OpInsert:
		actor.StagedRows = append(actor.StagedRows, op.Row)
	case scenario.OpScan:
		r.scan(actor, op, stepNum)
	case scenario.OpCommit:
		r.commit(actor)
	case scenario.OpAbort:
		r.abort(actor)
	}
}

// begin allocates the next runtime id and captures the committed set as the
// actor's snapshot. The capture happens exactly once; later commits by other
// actors never refresh it.
func (r *reducer) begin(actor *ActorState) {
	actor.RuntimeID = r.nextRuntimeID
	r.nextRuntimeID++
	actor.Status = StatusActive
	actor.Snapshot = append([]int(nil), r.state.CommittedSet...)
}

func (r *reducer) read(actor *ActorState, op scenario.Operation, stepNum int) {
	var value int64
	if r.scn.Isolation == scenario.IsolationSnapshot {
		if v, ok := visibleVersion(r.state.Versions[op.Item], actor); ok {
			value = v.Value
		}
	} else {
		value = r.state.Committed[op.Item]
	}
	actor.Reads = append(actor.Reads, ReadEntry{
		Step:  stepNum,
		Time:  op.Time,
		Item:  op.Item,
		Value: value,
	})
}

// write computes the new value from the actor's own most recent read of the
// item, never from a fresh read of global state. Basing the write on the
// possibly stale read is what lets lost updates reproduce.
func (r *reducer) write(actor *ActorState, op scenario.Operation) {
	base, _ := actor.LastRead(op.Item)
	value := base + op.Delta

	if actor.StagedItems == nil {
		actor.StagedItems = map[string]int64{}
	}
	actor.StagedItems[op.Item] = value

	if r.scn.Isolation != scenario.IsolationSnapshot {
		return
	}
	history := r.state.Versions[op.Item]
	if i := visibleIndex(history, actor); i != -1 {
		history[i].Invalidator = actor.RuntimeID
	}
	r.state.Versions[op.Item] = append(history, Version{
		ID:      r.nextVersionID,
		Value:   value,
		Creator: actor.RuntimeID,
	})
	r.nextVersionID++
}

// scan filters the currently committed row set, not the actor's snapshot.
// This scenario family depicts an isolation level weak enough for phantoms:
// a row committed between two identical scans shows up in the second one.
// Results are logged verbatim and never cached across scans.
func (r *reducer) scan(actor *ActorState, op scenario.Operation, stepNum int) {
	var matched []scenario.Row
	for _, row := range r.state.Rows {
		if row.Dept == op.Predicate {
			matched = append(matched, row)
		}
	}
	actor.Scans = append(actor.Scans, ScanEntry{
		Step:      stepNum,
		Time:      op.Time,
		Predicate: op.Predicate,
		Rows:      matched,
	})
}

func (r *reducer) commit(actor *ActorState) {
	for item, value := range actor.StagedItems {
		r.state.Committed[item] = value
	}
	if len(actor.StagedRows) > 0 {
		r.state.Rows = append(r.state.Rows, actor.StagedRows...)
		sort.Slice(r.state.Rows, func(i, j int) bool {
			return r.state.Rows[i].ID < r.state.Rows[j].ID
		})
	}
	actor.StagedItems = nil
	actor.StagedRows = nil
	actor.Status = StatusCommitted

	r.state.CommittedSet = append(r.state.CommittedSet, actor.RuntimeID)
	sort.Ints(r.state.CommittedSet)
}

// abort discards staged work and clears any invalidator marks the actor had
// set. Versions the actor created stay in the append-only history; with the
// creator never committed they are permanently invisible.
func (r *reducer) abort(actor *ActorState) {
	actor.StagedItems = nil
	actor.StagedRows = nil
	actor.Status = StatusAborted

	for item, history := range r.state.Versions {
		for i := range history {
			if history[i].Invalidator == actor.RuntimeID {
				history[i].Invalidator = 0
			}
		}
		r.state.Versions[item] = history
	}
}
