package scenario

import (
	"context"
	"flag"
	"strings"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Step != -1 {
		t.Fatalf("expected step to default to -1, got %d", cfg.Step)
	}
	if cfg.Locale != "en-US" {
		t.Fatalf("expected default locale, got %q", cfg.Locale)
	}
	if !cfg.Assertions {
		t.Fatal("expected assertions to default to true")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("ISOVIZ_SCENARIO_ID", "env-scenario")
	t.Setenv("ISOVIZ_LOCALE", "pt-BR")

	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	args := []string{
		"-builtin", "flag-scenario",
		"-step", "3",
		"-assert=false",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Builtin != "flag-scenario" {
		t.Fatalf("expected flag builtin id, got %q", cfg.Builtin)
	}
	if cfg.Locale != "pt-BR" {
		t.Fatalf("expected env locale, got %q", cfg.Locale)
	}
	if cfg.Step != 3 {
		t.Fatalf("expected flag step, got %d", cfg.Step)
	}
	if cfg.Assertions {
		t.Fatal("expected assertions disabled by flag")
	}
}

func TestRunRequiresScenario(t *testing.T) {
	err := Run(context.Background(), Config{}, nil, nil)
	if err == nil {
		t.Fatal("expected an error without a scenario")
	}
}

func TestRunRejectsAmbiguousScenario(t *testing.T) {
	err := Run(context.Background(), Config{Scenario: "a.lua", Builtin: "lost-update"}, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutually exclusive error, got %v", err)
	}
}

func TestRunBuiltinPrintsFinalState(t *testing.T) {
	var out strings.Builder
	cfg := Config{Builtin: "lost-update", Step: -1, Assertions: true}
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "committed Balance = 150") {
		t.Fatalf("output missing final balance:\n%s", out.String())
	}
}

func TestRunUnknownBuiltin(t *testing.T) {
	err := Run(context.Background(), Config{Builtin: "write-skew"}, nil, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown scenario id")
	}
}
