package scenariorun

import (
	"fmt"
	"log"
)

// AssertionMode controls how expectation mismatches are handled.
type AssertionMode string

const (
	// AssertionStrict fails the run on the first mismatch.
	AssertionStrict AssertionMode = "strict"
	// AssertionLogOnly logs mismatches and lets the run continue.
	AssertionLogOnly AssertionMode = "log-only"
)

// Assertions applies the configured mode to expectation checks.
type Assertions struct {
	Mode   AssertionMode
	Logger *log.Logger
}

// Assertf reports a mismatch: an error in strict mode, a log line otherwise.
func (a Assertions) Assertf(format string, args ...any) error {
	if a.Mode == AssertionLogOnly {
		if a.Logger != nil {
			a.Logger.Printf("assertion: "+format, args...)
		}
		return nil
	}
	return fmt.Errorf(format, args...)
}

// Failf reports a structural failure that no mode can downgrade.
func (a Assertions) Failf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
