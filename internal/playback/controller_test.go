package playback

import (
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
	"github.com/isoviz/isoviz/internal/scenario/catalog"
)

func plainScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:           "plain",
		Isolation:    scenario.IsolationReadCommitted,
		InitialItems: map[string]int64{"X": 1},
		Actors: []scenario.Actor{
			{ID: "T1", Operations: []scenario.Operation{
				{Time: 1, Type: scenario.OpBegin},
				{Time: 2, Type: scenario.OpRead, Item: "X"},
				{Time: 3, Type: scenario.OpCommit},
			}},
		},
	}
}

func pausingScenario() *scenario.Scenario {
	s := plainScenario()
	s.Moments = []scenario.KeyMoment{
		{Step: 2, TitleKey: "t", BodyKey: "b", AutoPause: true},
	}
	return s
}

func TestStartAdvancesToStepOne(t *testing.T) {
	c := New(plainScenario())

	info := c.Start()
	if info.Step != 1 || info.Status != StatusRunning {
		t.Fatalf("after start: %+v", info)
	}
}

func TestTickRunsToCompletion(t *testing.T) {
	c := New(plainScenario())
	c.Start()

	c.Tick() // step 2
	info := c.Tick() // step 3, the last operation
	if info.Step != 3 || info.Status != StatusRunning {
		t.Fatalf("at final step: %+v", info)
	}

	info = c.Tick() // past the end
	if info.Step != 3 || info.Status != StatusStopped {
		t.Fatalf("past the end: %+v", info)
	}

	// Further ticks are no-ops.
	info = c.Tick()
	if info.Step != 3 || info.Status != StatusStopped {
		t.Fatalf("tick after stop: %+v", info)
	}
}

func TestAutoPauseAndResume(t *testing.T) {
	c := New(pausingScenario())
	c.Start()

	info := c.Tick()
	if info.Step != 2 || info.Status != StatusPaused {
		t.Fatalf("expected auto-pause at step 2: %+v", info)
	}

	// A tick while paused must not advance.
	info = c.Tick()
	if info.Step != 2 {
		t.Fatalf("tick advanced while paused: %+v", info)
	}

	info = c.Resume()
	if info.Status != StatusRunning {
		t.Fatalf("after resume: %+v", info)
	}

	// Stepping back over the dismissed moment must not re-pause.
	c.Pause()
	if _, err := c.Seek(1); err != nil {
		t.Fatalf("seek: %v", err)
	}
	c.Resume()
	info = c.Tick()
	if info.Step != 2 || info.Status != StatusRunning {
		t.Fatalf("dismissed moment re-paused: %+v", info)
	}
}

func TestStartReappliesDismissedPauses(t *testing.T) {
	c := New(pausingScenario())
	c.Start()
	c.Tick()
	c.Resume()

	c.Start()
	info := c.Tick()
	if info.Status != StatusPaused {
		t.Fatalf("expected auto-pause after restart: %+v", info)
	}
}

func TestManualSteppingRejectedWhileRunning(t *testing.T) {
	c := New(plainScenario())
	c.Start()

	wantRunning := errors.New(errors.CodePlaybackRunning, "")
	if _, err := c.StepForward(); !stderrors.Is(err, wantRunning) {
		t.Fatalf("step forward: %v", err)
	}
	if _, err := c.StepBackward(); !stderrors.Is(err, wantRunning) {
		t.Fatalf("step backward: %v", err)
	}
	if _, err := c.Seek(0); !stderrors.Is(err, wantRunning) {
		t.Fatalf("seek: %v", err)
	}
}

func TestStepForwardClampsAtEnd(t *testing.T) {
	c := New(plainScenario())
	if _, err := c.Seek(3); err != nil {
		t.Fatalf("seek: %v", err)
	}

	info, err := c.StepForward()
	if err != nil {
		t.Fatalf("step forward: %v", err)
	}
	if info.Step != 3 {
		t.Fatalf("step = %d, want 3 (no-op at the end)", info.Step)
	}
}

func TestStepBackwardClampsAtZero(t *testing.T) {
	c := New(plainScenario())

	info, err := c.StepBackward()
	if err != nil {
		t.Fatalf("step backward: %v", err)
	}
	if info.Step != 0 {
		t.Fatalf("step = %d, want 0", info.Step)
	}
}

func TestSeekRejectsOutOfRange(t *testing.T) {
	c := New(plainScenario())

	want := errors.New(errors.CodeReplayStepOutOfRange, "")
	if _, err := c.Seek(-1); !stderrors.Is(err, want) {
		t.Fatalf("seek -1: %v", err)
	}
	if _, err := c.Seek(4); !stderrors.Is(err, want) {
		t.Fatalf("seek 4: %v", err)
	}
}

func TestStartThenResetRestoresInitialState(t *testing.T) {
	s := catalog.LostUpdate()
	c := New(s)
	c.Start()
	c.Tick()
	c.Tick()

	info := c.Reset()
	if info.Step != 0 || info.Status != StatusStopped {
		t.Fatalf("after reset: %+v", info)
	}

	got, err := replay.Reduce(s, info.Step)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	want, err := replay.Reduce(s, 0)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("state after reset differs from initial state")
	}
	if got.Committed["Balance"] != 100 {
		t.Fatalf("balance = %d, want 100", got.Committed["Balance"])
	}
}

func TestSetSpeedScalesInterval(t *testing.T) {
	c := New(plainScenario())

	if _, err := c.SetSpeed(2); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := c.Interval(); got != 400*time.Millisecond {
		t.Fatalf("interval = %v", got)
	}

	want := errors.New(errors.CodePlaybackSpeedInvalid, "")
	if _, err := c.SetSpeed(0); !stderrors.Is(err, want) {
		t.Fatalf("speed 0: %v", err)
	}
	if _, err := c.SetSpeed(MaxSpeed + 1); !stderrors.Is(err, want) {
		t.Fatalf("speed too high: %v", err)
	}
}

func TestStartOnEmptyScenarioStops(t *testing.T) {
	c := New(&scenario.Scenario{ID: "empty", Isolation: scenario.IsolationReadCommitted})

	info := c.Start()
	if info.Step != 0 || info.Status != StatusStopped {
		t.Fatalf("start on empty: %+v", info)
	}
}
