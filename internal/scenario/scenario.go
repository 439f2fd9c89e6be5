// Package scenario defines scripted transaction-isolation scenarios: named
// actors with time-stamped operations, annotated key moments, and the merger
// that flattens actor timelines into one globally ordered step sequence.
package scenario

import (
	"fmt"
	"sort"

	"github.com/isoviz/isoviz/internal/platform/errors"
)

// OpType identifies one kind of scripted operation.
type OpType string

const (
	OpBegin  OpType = "begin"
	OpRead   OpType = "read"
	OpWrite  OpType = "write"
	OpInsert OpType = "insert"
	OpScan   OpType = "scan"
	OpCommit OpType = "commit"
	OpAbort  OpType = "abort"
)

// Valid reports whether the operation type is one of the scripted kinds.
func (t OpType) Valid() bool {
	switch t {
	case OpBegin, OpRead, OpWrite, OpInsert, OpScan, OpCommit, OpAbort:
		return true
	}
	return false
}

// Isolation selects how reads resolve values during replay.
type Isolation string

const (
	// IsolationReadCommitted reads the current committed value directly.
	IsolationReadCommitted Isolation = "read-committed"
	// IsolationSnapshot resolves reads through MVCC version visibility.
	IsolationSnapshot Isolation = "snapshot"
)

// Valid reports whether the isolation level is known.
func (i Isolation) Valid() bool {
	return i == IsolationReadCommitted || i == IsolationSnapshot
}

// Row is one record in a scenario's scannable row set.
type Row struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Dept string `json:"dept"`
}

// Operation is one scripted step of an actor's timeline. Operations are
// immutable once a scenario is defined.
//
// Field usage by type: read and write use Item; write applies Delta to the
// actor's most recent read of Item (never re-read from global state, so
// stale-read anomalies reproduce faithfully); insert uses Row; scan uses
// Predicate as a department equality match.
type Operation struct {
	Time      int    `json:"time"`
	Type      OpType `json:"type"`
	Item      string `json:"item,omitempty"`
	Delta     int64  `json:"delta,omitempty"`
	Row       Row    `json:"row,omitempty"`
	Predicate string `json:"predicate,omitempty"`
}

// Actor is one scripted transaction. The operation list is fixed for the
// lifetime of the scenario and never mutated during replay.
type Actor struct {
	ID         string      `json:"id"`
	Color      string      `json:"color,omitempty"`
	Operations []Operation `json:"operations"`
}

// KeyMoment annotates one merged step with explanatory prose (catalog keys)
// and highlight directives for the presentation layer.
type KeyMoment struct {
	Step       int      `json:"step"`
	TitleKey   string   `json:"title_key"`
	BodyKey    string   `json:"body_key"`
	Highlights []string `json:"highlights,omitempty"`
	AutoPause  bool     `json:"auto_pause"`
}

// Expectation declares the final committed state a scenario should reach,
// checked by the scenario runner.
type Expectation struct {
	Items  map[string]int64 `json:"items,omitempty"`
	RowIDs []int64          `json:"row_ids,omitempty"`
}

// Scenario is a complete scripted timeline: initial state, actors, and
// annotated key moments. Name and summary are locale catalog keys.
type Scenario struct {
	ID           string           `json:"id"`
	NameKey      string           `json:"name_key"`
	SummaryKey   string           `json:"summary_key,omitempty"`
	Isolation    Isolation        `json:"isolation"`
	InitialItems map[string]int64 `json:"initial_items,omitempty"`
	InitialRows  []Row            `json:"initial_rows,omitempty"`
	Actors       []Actor          `json:"actors"`
	Moments      []KeyMoment      `json:"moments,omitempty"`
	Expect       Expectation      `json:"expect,omitempty"`
}

// Step is one entry of the merged global sequence.
type Step struct {
	Index   int       `json:"index"`
	ActorID string    `json:"actor_id"`
	Op      Operation `json:"op"`
}

// Merge flattens all actors' operations into one globally time-ordered
// sequence. The sort is stable: ties on Time keep each actor's own operation
// order and then actor declaration order. Pure function over static data.
func (s *Scenario) Merge() []Step {
	var steps []Step
	for _, actor := range s.Actors {
		for _, op := range actor.Operations {
			steps = append(steps, Step{ActorID: actor.ID, Op: op})
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Op.Time < steps[j].Op.Time
	})
	for i := range steps {
		steps[i].Index = i
	}
	return steps
}

// StepCount returns the length of the merged sequence.
func (s *Scenario) StepCount() int {
	total := 0
	for _, actor := range s.Actors {
		total += len(actor.Operations)
	}
	return total
}

// Actor returns the declared actor with the given id.
func (s *Scenario) Actor(id string) (Actor, bool) {
	for _, actor := range s.Actors {
		if actor.ID == id {
			return actor, true
		}
	}
	return Actor{}, false
}

// MomentAt returns the key moment annotating the given merged step, if any.
func (s *Scenario) MomentAt(step int) (KeyMoment, bool) {
	for _, moment := range s.Moments {
		if moment.Step == step {
			return moment, true
		}
	}
	return KeyMoment{}, false
}

// Validate checks the scenario definition for the malformations that would
// otherwise surface as undefined values during replay: unknown item
// references, out-of-order or post-finish operations, writes without a prior
// read, and key moments pointing outside the merged sequence.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return errors.New(errors.CodeScenarioIDEmpty, "scenario id is required")
	}
	if !s.Isolation.Valid() {
		return errors.WithMetadata(errors.CodeScenarioIsolationInvalid,
			fmt.Sprintf("scenario %s: unknown isolation %q", s.ID, s.Isolation),
			map[string]string{"scenario": s.ID, "isolation": string(s.Isolation)})
	}
	if len(s.Actors) == 0 {
		return errors.WithMetadata(errors.CodeScenarioNoActors,
			fmt.Sprintf("scenario %s has no actors", s.ID),
			map[string]string{"scenario": s.ID})
	}

	rowIDs := map[int64]bool{}
	for _, row := range s.InitialRows {
		if rowIDs[row.ID] {
			return errors.WithMetadata(errors.CodeScenarioRowIDDuplicate,
				fmt.Sprintf("scenario %s: duplicate initial row id %d", s.ID, row.ID),
				map[string]string{"scenario": s.ID, "row": fmt.Sprint(row.ID)})
		}
		rowIDs[row.ID] = true
	}

	seen := map[string]bool{}
	for _, actor := range s.Actors {
		if actor.ID == "" {
			return errors.WithMetadata(errors.CodeScenarioActorIDEmpty,
				fmt.Sprintf("scenario %s has an actor without an id", s.ID),
				map[string]string{"scenario": s.ID})
		}
		if seen[actor.ID] {
			return errors.WithMetadata(errors.CodeScenarioActorIDDuplicate,
				fmt.Sprintf("scenario %s: duplicate actor id %q", s.ID, actor.ID),
				map[string]string{"scenario": s.ID, "actor": actor.ID})
		}
		seen[actor.ID] = true

		if err := s.validateActorOps(actor); err != nil {
			return err
		}
	}

	total := s.StepCount()
	for _, moment := range s.Moments {
		if moment.Step < 1 || moment.Step > total {
			return errors.WithMetadata(errors.CodeScenarioMomentOutOfRange,
				fmt.Sprintf("scenario %s: key moment step %d outside 1..%d", s.ID, moment.Step, total),
				map[string]string{"scenario": s.ID, "step": fmt.Sprint(moment.Step)})
		}
	}
	return nil
}

func (s *Scenario) validateActorOps(actor Actor) error {
	began := false
	finished := false
	lastTime := 0
	readItems := map[string]bool{}

	fail := func(code errors.Code, format string, args ...any) error {
		return errors.WithMetadata(code,
			fmt.Sprintf("scenario %s actor %s: %s", s.ID, actor.ID, fmt.Sprintf(format, args...)),
			map[string]string{"scenario": s.ID, "actor": actor.ID})
	}

	for i, op := range actor.Operations {
		if !op.Type.Valid() {
			return fail(errors.CodeScenarioOpTypeInvalid, "operation %d has unknown type %q", i, op.Type)
		}
		if i > 0 && op.Time < lastTime {
			return fail(errors.CodeScenarioOpOutOfOrder, "operation %d at time %d precedes time %d", i, op.Time, lastTime)
		}
		lastTime = op.Time

		if finished {
			return fail(errors.CodeScenarioOpAfterFinish, "operation %d follows commit/abort", i)
		}
		if !began && op.Type != OpBegin {
			return fail(errors.CodeScenarioOpMissingBegin, "operation %d (%s) precedes begin", i, op.Type)
		}

		switch op.Type {
		case OpBegin:
			if began {
				return fail(errors.CodeScenarioOpTypeInvalid, "operation %d is a second begin", i)
			}
			began = true
		case OpRead:
			if _, ok := s.InitialItems[op.Item]; !ok {
				return fail(errors.CodeScenarioItemUnknown, "read of unknown item %q", op.Item)
			}
			readItems[op.Item] = true
		case OpWrite:
			if _, ok := s.InitialItems[op.Item]; !ok {
				return fail(errors.CodeScenarioItemUnknown, "write of unknown item %q", op.Item)
			}
			if !readItems[op.Item] {
				return fail(errors.CodeScenarioWriteBeforeRead, "write of %q without a prior read", op.Item)
			}
		case OpScan:
			if op.Predicate == "" {
				return fail(errors.CodeScenarioPredicateRequired, "scan without a predicate")
			}
		case OpCommit, OpAbort:
			finished = true
		}
	}
	return nil
}
