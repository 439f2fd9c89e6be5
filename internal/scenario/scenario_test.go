package scenario

import (
	stderrors "errors"
	"testing"

	"github.com/isoviz/isoviz/internal/platform/errors"
)

func validScenario() *Scenario {
	return &Scenario{
		ID:           "demo",
		NameKey:      "scenario.demo.name",
		Isolation:    IsolationReadCommitted,
		InitialItems: map[string]int64{"Balance": 100},
		Actors: []Actor{
			{ID: "T1", Operations: []Operation{
				{Time: 1, Type: OpBegin},
				{Time: 3, Type: OpRead, Item: "Balance"},
				{Time: 5, Type: OpWrite, Item: "Balance", Delta: -20},
				{Time: 7, Type: OpCommit},
			}},
			{ID: "T2", Operations: []Operation{
				{Time: 2, Type: OpBegin},
				{Time: 4, Type: OpRead, Item: "Balance"},
				{Time: 6, Type: OpWrite, Item: "Balance", Delta: 50},
				{Time: 8, Type: OpCommit},
			}},
		},
		Moments: []KeyMoment{
			{Step: 4, TitleKey: "t", BodyKey: "b", AutoPause: true},
		},
	}
}

func TestMergeOrdersByTime(t *testing.T) {
	s := validScenario()
	steps := s.Merge()

	if len(steps) != s.StepCount() {
		t.Fatalf("merged %d steps, want %d", len(steps), s.StepCount())
	}
	wantActors := []string{"T1", "T2", "T1", "T2", "T1", "T2", "T1", "T2"}
	for i, step := range steps {
		if step.Index != i {
			t.Errorf("step %d: index = %d", i, step.Index)
		}
		if step.ActorID != wantActors[i] {
			t.Errorf("step %d: actor = %s, want %s", i, step.ActorID, wantActors[i])
		}
		if i > 0 && steps[i-1].Op.Time > step.Op.Time {
			t.Errorf("step %d: time %d precedes %d", i, step.Op.Time, steps[i-1].Op.Time)
		}
	}
}

func TestMergeTieBreakUsesDeclarationOrder(t *testing.T) {
	s := &Scenario{
		ID:           "ties",
		Isolation:    IsolationReadCommitted,
		InitialItems: map[string]int64{"X": 0},
		Actors: []Actor{
			{ID: "A", Operations: []Operation{
				{Time: 1, Type: OpBegin},
				{Time: 1, Type: OpRead, Item: "X"},
			}},
			{ID: "B", Operations: []Operation{
				{Time: 1, Type: OpBegin},
			}},
		},
	}
	steps := s.Merge()

	wantActors := []string{"A", "A", "B"}
	for i, step := range steps {
		if step.ActorID != wantActors[i] {
			t.Fatalf("step %d: actor = %s, want %s", i, step.ActorID, wantActors[i])
		}
	}
}

func TestMergeIsPure(t *testing.T) {
	s := validScenario()
	first := s.Merge()
	second := s.Merge()

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("step %d differs between merges", i)
		}
	}
}

func TestMomentAt(t *testing.T) {
	s := validScenario()

	if _, ok := s.MomentAt(3); ok {
		t.Fatal("unexpected moment at step 3")
	}
	moment, ok := s.MomentAt(4)
	if !ok {
		t.Fatal("expected moment at step 4")
	}
	if !moment.AutoPause {
		t.Fatal("expected auto-pause moment")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Scenario)
		wantCode errors.Code
	}{
		{
			name:   "valid",
			mutate: func(*Scenario) {},
		},
		{
			name:     "empty id",
			mutate:   func(s *Scenario) { s.ID = "" },
			wantCode: errors.CodeScenarioIDEmpty,
		},
		{
			name:     "bad isolation",
			mutate:   func(s *Scenario) { s.Isolation = "serializable" },
			wantCode: errors.CodeScenarioIsolationInvalid,
		},
		{
			name:     "no actors",
			mutate:   func(s *Scenario) { s.Actors = nil },
			wantCode: errors.CodeScenarioNoActors,
		},
		{
			name:     "blank actor id",
			mutate:   func(s *Scenario) { s.Actors[0].ID = "" },
			wantCode: errors.CodeScenarioActorIDEmpty,
		},
		{
			name:     "duplicate actor id",
			mutate:   func(s *Scenario) { s.Actors[1].ID = "T1" },
			wantCode: errors.CodeScenarioActorIDDuplicate,
		},
		{
			name: "duplicate initial row id",
			mutate: func(s *Scenario) {
				s.InitialRows = []Row{{ID: 1, Name: "Alice"}, {ID: 1, Name: "Bob"}}
			},
			wantCode: errors.CodeScenarioRowIDDuplicate,
		},
		{
			name: "unknown op type",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[1].Type = "savepoint"
			},
			wantCode: errors.CodeScenarioOpTypeInvalid,
		},
		{
			name: "out of order times",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[2].Time = 2
			},
			wantCode: errors.CodeScenarioOpOutOfOrder,
		},
		{
			name: "operation before begin",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[0].Type = OpRead
				s.Actors[0].Operations[0].Item = "Balance"
			},
			wantCode: errors.CodeScenarioOpMissingBegin,
		},
		{
			name: "operation after commit",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations = append(s.Actors[0].Operations,
					Operation{Time: 9, Type: OpRead, Item: "Balance"})
			},
			wantCode: errors.CodeScenarioOpAfterFinish,
		},
		{
			name: "read of unknown item",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[1].Item = "Missing"
			},
			wantCode: errors.CodeScenarioItemUnknown,
		},
		{
			name: "write without prior read",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[1] = Operation{Time: 3, Type: OpWrite, Item: "Balance", Delta: 1}
				s.Actors[0].Operations[2] = Operation{Time: 5, Type: OpRead, Item: "Balance"}
			},
			wantCode: errors.CodeScenarioWriteBeforeRead,
		},
		{
			name: "scan without predicate",
			mutate: func(s *Scenario) {
				s.Actors[0].Operations[1] = Operation{Time: 3, Type: OpScan}
				s.Actors[0].Operations[2] = Operation{Time: 5, Type: OpRead, Item: "Balance"}
			},
			wantCode: errors.CodeScenarioPredicateRequired,
		},
		{
			name: "moment past the end",
			mutate: func(s *Scenario) {
				s.Moments[0].Step = 99
			},
			wantCode: errors.CodeScenarioMomentOutOfRange,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validScenario()
			tc.mutate(s)

			err := s.Validate()
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if !stderrors.Is(err, errors.New(tc.wantCode, "")) {
				t.Fatalf("validate = %v, want code %s", err, tc.wantCode)
			}
		})
	}
}
