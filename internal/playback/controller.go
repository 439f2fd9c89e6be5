// Package playback steps a scenario timeline: a lock-guarded state machine
// advanced by an external ticker, with auto-pause at annotated key moments
// and manual step/seek navigation. The controller never computes derived
// state itself; callers recompute it from the step index, so navigation in
// either direction is exact.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/scenario"
)

// Status is the playback phase.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// BaseInterval is the tick interval at speed 1.
const BaseInterval = 800 * time.Millisecond

// MaxSpeed bounds the speed multiplier.
const MaxSpeed = 8.0

// Info is a point-in-time snapshot of the controller.
type Info struct {
	Step   int     `json:"step"`
	Total  int     `json:"total"`
	Status Status  `json:"status"`
	Speed  float64 `json:"speed"`
}

// Controller drives one scenario's playback. All methods are safe for
// concurrent use; the scenario itself is never mutated.
type Controller struct {
	mu    sync.Mutex
	scn   *scenario.Scenario
	total int

	step   int
	status Status
	speed  float64

	// cleared holds steps whose auto-pause was dismissed by Resume, so a
	// later pass over the same moment does not immediately re-pause.
	cleared map[int]bool
}

// New creates a stopped controller at step 0 with speed 1.
func New(s *scenario.Scenario) *Controller {
	return &Controller{
		scn:     s,
		total:   s.StepCount(),
		status:  StatusStopped,
		speed:   1,
		cleared: map[int]bool{},
	}
}

// Scenario returns the scripted scenario under playback.
func (c *Controller) Scenario() *scenario.Scenario {
	return c.scn
}

// Info returns the current step, total, status, and speed.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infoLocked()
}

func (c *Controller) infoLocked() Info {
	return Info{Step: c.step, Total: c.total, Status: c.status, Speed: c.speed}
}

// Start resets playback to step 0, immediately advances to step 1, and
// enters running. Auto-pause moments dismissed in a previous run apply again.
func (c *Controller) Start() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = 0
	c.cleared = map[int]bool{}
	if c.total == 0 {
		c.status = StatusStopped
		return c.infoLocked()
	}
	c.status = StatusRunning
	c.advanceLocked()
	return c.infoLocked()
}

// Tick advances one step while running. Ticks outside running are no-ops, so
// a ticker racing a pause does no harm.
func (c *Controller) Tick() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusRunning {
		return c.infoLocked()
	}
	c.advanceLocked()
	return c.infoLocked()
}

// advanceLocked moves one step forward, auto-pausing on annotated moments and
// stopping at the end of the merged sequence.
func (c *Controller) advanceLocked() {
	if c.step >= c.total {
		c.status = StatusStopped
		return
	}
	c.step++
	if moment, ok := c.scn.MomentAt(c.step); ok && moment.AutoPause && !c.cleared[c.step] {
		c.status = StatusPaused
	}
}

// Pause suspends a running playback.
func (c *Controller) Pause() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		c.status = StatusPaused
	}
	return c.infoLocked()
}

// Resume continues a paused playback. The current step's auto-pause is
// dismissed so the moment does not re-pause when replayed.
func (c *Controller) Resume() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPaused {
		return c.infoLocked()
	}
	c.cleared[c.step] = true
	c.status = StatusRunning
	return c.infoLocked()
}

// StepForward moves one step forward. Stepping at the final step is a no-op.
// Manual navigation is rejected mid-running.
func (c *Controller) StepForward() (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return c.infoLocked(), errors.New(errors.CodePlaybackRunning, "cannot step while running")
	}
	if c.step < c.total {
		c.step++
	}
	return c.infoLocked(), nil
}

// StepBackward moves one step back, clamped at step 0.
func (c *Controller) StepBackward() (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return c.infoLocked(), errors.New(errors.CodePlaybackRunning, "cannot step while running")
	}
	if c.step > 0 {
		c.step--
	}
	return c.infoLocked(), nil
}

// Seek jumps to an arbitrary step, rejected mid-running or out of range.
func (c *Controller) Seek(step int) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return c.infoLocked(), errors.New(errors.CodePlaybackRunning, "cannot seek while running")
	}
	if step < 0 || step > c.total {
		return c.infoLocked(), errors.WithMetadata(errors.CodeReplayStepOutOfRange,
			fmt.Sprintf("seek step %d outside 0..%d", step, c.total),
			map[string]string{"step": fmt.Sprint(step), "total": fmt.Sprint(c.total)})
	}
	c.step = step
	return c.infoLocked(), nil
}

// Reset returns to step 0 and stops playback. Derived state recomputed at
// step 0 is exactly the scenario's initial state.
func (c *Controller) Reset() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = 0
	c.status = StatusStopped
	c.cleared = map[int]bool{}
	return c.infoLocked()
}

// SetSpeed updates the speed multiplier used to scale the tick interval.
func (c *Controller) SetSpeed(speed float64) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if speed <= 0 || speed > MaxSpeed {
		return c.infoLocked(), errors.WithMetadata(errors.CodePlaybackSpeedInvalid,
			fmt.Sprintf("speed %v outside (0, %v]", speed, MaxSpeed),
			map[string]string{"speed": fmt.Sprint(speed)})
	}
	c.speed = speed
	return c.infoLocked(), nil
}

// Interval returns the tick interval scaled by the current speed.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(float64(BaseInterval) / c.speed)
}
