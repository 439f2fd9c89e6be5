// Package repl provides an interactive shell for stepping through scenario
// timelines: load a scenario, play it, and inspect the derived state at any
// step.
package repl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"

	"github.com/isoviz/isoviz/internal/platform/config"
	i18n "github.com/isoviz/isoviz/internal/platform/i18n/catalog"
	"github.com/isoviz/isoviz/internal/playback"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
	"github.com/isoviz/isoviz/internal/scenario/catalog"
	luascenario "github.com/isoviz/isoviz/internal/scenario/lua"
)

// Config holds repl command configuration.
type Config struct {
	Scenario string `env:"ISOVIZ_SCENARIO_FILE"`
	Builtin  string `env:"ISOVIZ_SCENARIO_ID"`
	Locale   string `env:"ISOVIZ_LOCALE" envDefault:"en-US"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to scenario lua file")
	fs.StringVar(&cfg.Builtin, "builtin", cfg.Builtin, "built-in scenario id")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for scenario prose")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("scenarios"),
	readline.PcItem("load"),

	readline.PcItem("start"),
	readline.PcItem("run"),
	readline.PcItem("pause"),
	readline.PcItem("resume"),
	readline.PcItem("reset"),

	readline.PcItem("step"),
	readline.PcItem("back"),
	readline.PcItem("seek"),
	readline.PcItem("speed"),

	readline.PcItem("state"),
	readline.PcItem("locale"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// REPL holds the shell state: one loaded scenario and its controller.
type REPL struct {
	rl     *readline.Instance
	out    io.Writer
	errOut io.Writer
	bundle *i18n.Bundle
	locale string

	ctrl *playback.Controller
}

// New builds a REPL without opening the terminal.
func New(cfg Config, out, errOut io.Writer) *REPL {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	locale := cfg.Locale
	if locale == "" {
		locale = i18n.BaseLocale
	}
	return &REPL{
		out:    out,
		errOut: errOut,
		bundle: i18n.Default(),
		locale: locale,
	}
}

// Open prepares the readline instance.
func (r *REPL) Open() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "isoviz> ",
		HistoryFile:     filepath.Join(os.TempDir(), "isoviz_repl_history"),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	rl.CaptureExitSignal()
	r.rl = rl
	return nil
}

// Close releases the readline instance.
func (r *REPL) Close() error {
	if r.rl != nil {
		_ = r.rl.Close()
		r.rl = nil
	}
	return nil
}

// Loop reads and dispatches commands until exit or EOF.
func (r *REPL) Loop(ctx context.Context) error {
	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if r.handleLine(ctx, line) {
			return nil
		}
	}
}

// handleLine dispatches one command line and reports whether to quit.
func (r *REPL) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg := line, ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd = line[:ws]
		arg = strings.TrimSpace(line[ws:])
	}

	var err error
	switch cmd {
	case "help":
		r.printHelp()
	case "scenarios":
		r.printScenarios()
	case "load":
		err = r.load(arg)
	case "start":
		err = r.withController(func(ctrl *playback.Controller) error {
			r.printInfo(ctrl.Start())
			return nil
		})
	case "run":
		err = r.run(ctx)
	case "pause":
		err = r.withController(func(ctrl *playback.Controller) error {
			r.printInfo(ctrl.Pause())
			return nil
		})
	case "resume":
		err = r.withController(func(ctrl *playback.Controller) error {
			r.printInfo(ctrl.Resume())
			return nil
		})
	case "reset":
		err = r.withController(func(ctrl *playback.Controller) error {
			r.printInfo(ctrl.Reset())
			return nil
		})
	case "step":
		err = r.withController(func(ctrl *playback.Controller) error {
			info, stepErr := ctrl.StepForward()
			if stepErr != nil {
				return stepErr
			}
			return r.printState(info)
		})
	case "back":
		err = r.withController(func(ctrl *playback.Controller) error {
			info, stepErr := ctrl.StepBackward()
			if stepErr != nil {
				return stepErr
			}
			return r.printState(info)
		})
	case "seek":
		err = r.seek(arg)
	case "speed":
		err = r.setSpeed(arg)
	case "state":
		err = r.withController(func(ctrl *playback.Controller) error {
			return r.printState(ctrl.Info())
		})
	case "locale":
		if arg == "" {
			fmt.Fprintf(r.out, "locale: %s\n", r.locale)
		} else {
			r.locale = arg
		}
	case "exit", "quit":
		return true
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
	}
	return false
}

// load reads a scenario by built-in id, or from a lua file when the argument
// names one, and points a fresh controller at it.
func (r *REPL) load(arg string) error {
	if arg == "" {
		return errors.New("usage: load <scenario-id|file.lua>")
	}
	var (
		scn *scenario.Scenario
		err error
	)
	if strings.HasSuffix(arg, ".lua") {
		scn, err = luascenario.LoadFile(arg)
	} else {
		scn, err = catalog.Get(arg)
	}
	if err != nil {
		return err
	}
	r.ctrl = playback.New(scn)
	fmt.Fprintf(r.out, "loaded %s: %s (%d steps, %d actors)\n",
		scn.ID, r.message(scn.NameKey), scn.StepCount(), len(scn.Actors))
	return nil
}

// run ticks the controller until it pauses, stops, or the context ends.
func (r *REPL) run(ctx context.Context) error {
	return r.withController(func(ctrl *playback.Controller) error {
		info := ctrl.Info()
		if info.Status == playback.StatusStopped {
			info = ctrl.Start()
			r.printInfo(info)
		}
		for info.Status == playback.StatusRunning {
			select {
			case <-ctx.Done():
				ctrl.Pause()
				return ctx.Err()
			case <-time.After(ctrl.Interval()):
			}
			info = ctrl.Tick()
			if err := r.printState(info); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *REPL) seek(arg string) error {
	step, err := strconv.Atoi(arg)
	if err != nil {
		return errors.New("usage: seek <step>")
	}
	return r.withController(func(ctrl *playback.Controller) error {
		info, seekErr := ctrl.Seek(step)
		if seekErr != nil {
			return seekErr
		}
		return r.printState(info)
	})
}

func (r *REPL) setSpeed(arg string) error {
	speed, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return errors.New("usage: speed <multiplier>")
	}
	return r.withController(func(ctrl *playback.Controller) error {
		info, speedErr := ctrl.SetSpeed(speed)
		if speedErr != nil {
			return speedErr
		}
		r.printInfo(info)
		return nil
	})
}

func (r *REPL) withController(fn func(*playback.Controller) error) error {
	if r.ctrl == nil {
		return errors.New("no scenario loaded (try: load lost-update)")
	}
	return fn(r.ctrl)
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `commands:
  scenarios            list built-in scenarios
  load <id|file.lua>   load a scenario
  start                reset and begin playback
  run                  tick until the next pause or the end
  pause | resume       pause playback, dismiss the current pause
  step | back          move one step manually
  seek <step>          jump to a step
  speed <multiplier>   set the playback speed
  reset                return to the initial state
  state                print the derived state at the current step
  locale [tag]         show or switch the prose locale
  exit                 leave the shell
`)
}

func (r *REPL) printScenarios() {
	for _, scn := range catalog.All() {
		fmt.Fprintf(r.out, "%s — %s\n", scn.ID, r.message(scn.NameKey))
	}
}

func (r *REPL) printInfo(info playback.Info) {
	fmt.Fprintf(r.out, "step %d/%d %s %.2gx\n", info.Step, info.Total, info.Status, info.Speed)
}

// printState recomputes and prints the derived state for the current step.
func (r *REPL) printState(info playback.Info) error {
	state, err := replay.Reduce(r.ctrl.Scenario(), info.Step)
	if err != nil {
		return err
	}
	r.printInfo(info)

	items := make([]string, 0, len(state.Committed))
	for item := range state.Committed {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		fmt.Fprintf(r.out, "  committed %s = %d\n", item, state.Committed[item])
	}
	for _, row := range state.Rows {
		fmt.Fprintf(r.out, "  row %d: %s (%s)\n", row.ID, row.Name, row.Dept)
	}
	for _, id := range state.ActorOrder {
		actor := state.Actors[id]
		fmt.Fprintf(r.out, "  actor %s: %s", id, actor.Status)
		for _, read := range actor.Reads {
			fmt.Fprintf(r.out, " read(%s=%d)", read.Item, read.Value)
		}
		for _, scan := range actor.Scans {
			fmt.Fprintf(r.out, " scan(%s: %d rows)", scan.Predicate, len(scan.Rows))
		}
		fmt.Fprintln(r.out)
	}
	if state.Moment != nil {
		fmt.Fprintf(r.out, "  moment: %s\n    %s\n",
			r.message(state.Moment.TitleKey), r.message(state.Moment.BodyKey))
	}
	return nil
}

// message resolves a catalog key, falling back to the raw key for ad-hoc Lua
// scenarios without catalog entries.
func (r *REPL) message(key string) string {
	if value, ok := r.bundle.Message(r.locale, key); ok {
		return value
	}
	return key
}

// Run opens the shell, loads any preconfigured scenario, and reads commands
// until exit.
func Run(ctx context.Context, cfg Config, out, errOut io.Writer) error {
	repl := New(cfg, out, errOut)
	if err := repl.Open(); err != nil {
		return err
	}
	defer repl.Close()

	switch {
	case cfg.Scenario != "":
		if err := repl.load(cfg.Scenario); err != nil {
			return err
		}
	case cfg.Builtin != "":
		if err := repl.load(cfg.Builtin); err != nil {
			return err
		}
	}
	return repl.Loop(ctx)
}
