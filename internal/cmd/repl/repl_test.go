package repl

import (
	"context"
	"flag"
	"strings"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Locale != "en-US" {
		t.Fatalf("expected default locale, got %q", cfg.Locale)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("ISOVIZ_SCENARIO_ID", "env-scenario")

	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-locale", "pt-BR"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Builtin != "env-scenario" {
		t.Fatalf("expected env builtin id, got %q", cfg.Builtin)
	}
	if cfg.Locale != "pt-BR" {
		t.Fatalf("expected flag locale, got %q", cfg.Locale)
	}
}

func newTestREPL(t *testing.T) (*REPL, *strings.Builder, *strings.Builder) {
	t.Helper()
	var out, errOut strings.Builder
	return New(Config{}, &out, &errOut), &out, &errOut
}

func TestHandleLineRequiresLoadedScenario(t *testing.T) {
	r, _, errOut := newTestREPL(t)

	r.handleLine(context.Background(), "step")
	if !strings.Contains(errOut.String(), "no scenario loaded") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestHandleLineLoadAndStep(t *testing.T) {
	r, out, errOut := newTestREPL(t)
	ctx := context.Background()

	r.handleLine(ctx, "load lost-update")
	if !strings.Contains(out.String(), "loaded lost-update: Lost Update (8 steps, 2 actors)") {
		t.Fatalf("stdout = %q", out.String())
	}

	r.handleLine(ctx, "step")
	if !strings.Contains(out.String(), "step 1/8 stopped") {
		t.Fatalf("stdout = %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestHandleLineSeekPrintsStateAndMoment(t *testing.T) {
	r, out, _ := newTestREPL(t)
	ctx := context.Background()

	r.handleLine(ctx, "load lost-update")
	r.handleLine(ctx, "seek 8")

	page := out.String()
	if !strings.Contains(page, "committed Balance = 150") {
		t.Fatalf("stdout = %q", page)
	}
	if !strings.Contains(page, "moment: The lost update") {
		t.Fatalf("stdout missing moment: %q", page)
	}
}

func TestHandleLineSeekOutOfRange(t *testing.T) {
	r, _, errOut := newTestREPL(t)
	ctx := context.Background()

	r.handleLine(ctx, "load lost-update")
	r.handleLine(ctx, "seek 99")
	if errOut.Len() == 0 {
		t.Fatal("expected a seek error")
	}
}

func TestHandleLineScenariosListsCatalog(t *testing.T) {
	r, out, _ := newTestREPL(t)

	r.handleLine(context.Background(), "scenarios")
	page := out.String()
	for _, id := range []string{"lost-update", "phantom-read", "mvcc-visibility", "mvcc-abort"} {
		if !strings.Contains(page, id) {
			t.Fatalf("missing %s in %q", id, page)
		}
	}
}

func TestHandleLineLocaleSwitch(t *testing.T) {
	r, out, _ := newTestREPL(t)
	ctx := context.Background()

	r.handleLine(ctx, "locale pt-BR")
	r.handleLine(ctx, "scenarios")
	if !strings.Contains(out.String(), "Atualização Perdida") {
		t.Fatalf("stdout = %q", out.String())
	}
}

func TestHandleLineUnknownCommand(t *testing.T) {
	r, _, errOut := newTestREPL(t)

	r.handleLine(context.Background(), "bogus")
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestHandleLineQuit(t *testing.T) {
	r, _, _ := newTestREPL(t)

	if !r.handleLine(context.Background(), "quit") {
		t.Fatal("quit did not request exit")
	}
	if r.handleLine(context.Background(), "state") {
		t.Fatal("state requested exit")
	}
}
