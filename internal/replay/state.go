// Package replay derives database state from scripted scenarios. The state at
// any step is a pure function of (scenario, step): every query recomputes the
// fold from step zero, so stepping backward is exact rather than approximate.
package replay

import "github.com/isoviz/isoviz/internal/scenario"

// ActorStatus is the lifecycle phase of one scripted transaction.
type ActorStatus string

const (
	// StatusPending means the actor's begin has not been replayed yet.
	StatusPending ActorStatus = "pending"
	StatusActive  ActorStatus = "active"
	// StatusCommitted and StatusAborted freeze the actor state.
	StatusCommitted ActorStatus = "committed"
	StatusAborted   ActorStatus = "aborted"
)

// Version is one historical value of an item, tagged with the runtime ids of
// the transaction that created it and, once superseded, the one that
// invalidated it. Histories are append-only; aborted creators leave their
// versions in place, permanently invisible.
type Version struct {
	ID          int   `json:"id"`
	Value       int64 `json:"value"`
	Creator     int   `json:"creator"`
	Invalidator int   `json:"invalidator,omitempty"`
}

// ReadEntry records one resolved read in an actor's log.
type ReadEntry struct {
	Step  int    `json:"step"`
	Time  int    `json:"time"`
	Item  string `json:"item"`
	Value int64  `json:"value"`
}

// ScanEntry records the verbatim result set of one predicate scan.
type ScanEntry struct {
	Step      int            `json:"step"`
	Time      int            `json:"time"`
	Predicate string         `json:"predicate"`
	Rows      []scenario.Row `json:"rows"`
}

// ActorState is the derived runtime state of one actor. It is created at the
// actor's begin step and frozen once the actor commits or aborts.
type ActorState struct {
	ID        string      `json:"id"`
	RuntimeID int         `json:"runtime_id"`
	Status    ActorStatus `json:"status"`
	// Snapshot holds the runtime ids that were globally committed when this
	// actor began, sorted ascending. Captured once, never refreshed.
	Snapshot []int `json:"snapshot,omitempty"`
	Reads    []ReadEntry `json:"reads,omitempty"`
	Scans    []ScanEntry `json:"scans,omitempty"`
	// StagedItems and StagedRows hold uncommitted work, published on commit
	// and discarded on abort.
	StagedItems map[string]int64 `json:"staged_items,omitempty"`
	StagedRows  []scenario.Row   `json:"staged_rows,omitempty"`
}

// InSnapshot reports whether the runtime id was committed when the actor's
// snapshot was captured.
func (a *ActorState) InSnapshot(runtimeID int) bool {
	for _, id := range a.Snapshot {
		if id == runtimeID {
			return true
		}
	}
	return false
}

// LastRead returns the value of the actor's most recent read of item.
func (a *ActorState) LastRead(item string) (int64, bool) {
	for i := len(a.Reads) - 1; i >= 0; i-- {
		if a.Reads[i].Item == item {
			return a.Reads[i].Value, true
		}
	}
	return 0, false
}

// State is the full derived snapshot of a scenario at one step.
type State struct {
	Step int `json:"step"`
	// Committed holds current committed item values.
	Committed map[string]int64 `json:"committed"`
	// Rows holds current committed rows, sorted by id.
	Rows []scenario.Row `json:"rows,omitempty"`
	// Versions holds each item's append-only version history. Populated only
	// under snapshot isolation.
	Versions map[string][]Version `json:"versions,omitempty"`
	// CommittedSet holds globally committed runtime ids, sorted ascending.
	// Runtime id 0 is the bootstrap creator of all initial state.
	CommittedSet []int `json:"committed_set"`
	// Actors is keyed by actor id; ActorOrder preserves declaration order.
	Actors     map[string]*ActorState `json:"actors"`
	ActorOrder []string               `json:"actor_order"`
	// Moment is the key moment annotating this step, if any.
	Moment *scenario.KeyMoment `json:"moment,omitempty"`
}

// Actor returns the derived state for the given actor id.
func (s *State) Actor(id string) (*ActorState, bool) {
	actor, ok := s.Actors[id]
	return actor, ok
}
