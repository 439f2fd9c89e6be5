// Package scenario parses scenario command flags and replays scenario
// timelines from Lua scripts or the built-in catalog.
package scenario

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"

	"github.com/isoviz/isoviz/internal/platform/config"
	"github.com/isoviz/isoviz/internal/tools/scenariorun"
)

// Config holds scenario command configuration.
type Config struct {
	Scenario   string `env:"ISOVIZ_SCENARIO_FILE"`
	Builtin    string `env:"ISOVIZ_SCENARIO_ID"`
	Step       int    `env:"ISOVIZ_SCENARIO_STEP"    envDefault:"-1"`
	Locale     string `env:"ISOVIZ_LOCALE"           envDefault:"en-US"`
	Assertions bool   `env:"ISOVIZ_SCENARIO_ASSERT"  envDefault:"true"`
	Verbose    bool   `env:"ISOVIZ_SCENARIO_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to scenario lua file")
	fs.StringVar(&cfg.Builtin, "builtin", cfg.Builtin, "built-in scenario id")
	fs.IntVar(&cfg.Step, "step", cfg.Step, "stop after this merged step (negative runs to the end)")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for scenario prose")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "enable assertions (disable to log expectations)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the scenario command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Scenario == "" && cfg.Builtin == "" {
		return errors.New("a scenario file or a built-in scenario id is required")
	}
	if cfg.Scenario != "" && cfg.Builtin != "" {
		return errors.New("scenario file and built-in scenario id are mutually exclusive")
	}

	mode := scenariorun.AssertionStrict
	if !cfg.Assertions {
		mode = scenariorun.AssertionLogOnly
	}

	runner := scenariorun.NewRunner(scenariorun.Config{
		Step:       cfg.Step,
		Locale:     cfg.Locale,
		Assertions: mode,
		Verbose:    cfg.Verbose,
		Logger:     log.New(errOut, "", 0),
		Out:        out,
	})
	if cfg.Scenario != "" {
		return runner.RunFile(cfg.Scenario)
	}
	return runner.RunBuiltin(cfg.Builtin)
}
