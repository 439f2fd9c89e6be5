package lua

import (
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
)

func TestLoadFile(t *testing.T) {
	scn, err := LoadFile(filepath.Join("testdata", "discount.lua"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if scn.ID != "discount" {
		t.Fatalf("id = %q", scn.ID)
	}
	if scn.Isolation != scenario.IsolationReadCommitted {
		t.Fatalf("isolation = %q", scn.Isolation)
	}
	if len(scn.Actors) != 2 || scn.Actors[0].ID != "T1" || scn.Actors[1].ID != "T2" {
		t.Fatalf("actors = %+v", scn.Actors)
	}
	if len(scn.Actors[0].Operations) != 4 {
		t.Fatalf("T1 has %d operations", len(scn.Actors[0].Operations))
	}
	if len(scn.Moments) != 1 {
		t.Fatalf("moments = %+v", scn.Moments)
	}
	moment := scn.Moments[0]
	if moment.Step != 8 || !moment.AutoPause {
		t.Fatalf("moment = %+v", moment)
	}
	if len(moment.Highlights) != 2 || moment.Highlights[0] != "T2" {
		t.Fatalf("highlights = %v", moment.Highlights)
	}
	if scn.Expect.Items["Price"] != 190 {
		t.Fatalf("expect = %+v", scn.Expect)
	}
}

func TestLoadedScenarioReplays(t *testing.T) {
	scn, err := LoadFile(filepath.Join("testdata", "discount.lua"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	state, err := replay.Reduce(scn, scn.StepCount())
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if state.Committed["Price"] != 190 {
		t.Fatalf("price = %d, want 190 (second commit wins)", state.Committed["Price"])
	}
}

func TestLoadStringDefaults(t *testing.T) {
	scn, err := LoadString(`
		local s = Scenario.new()
		s:item("X", 1)
		s:actor("T1")
		s:begin("T1", 1)
		s:read("T1", 2, "X")
		s:commit("T1", 3)
		return s
	`, "minimal")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if scn.ID != "minimal" {
		t.Fatalf("id = %q", scn.ID)
	}
	if scn.NameKey != "scenario.minimal.name" {
		t.Fatalf("name key = %q", scn.NameKey)
	}
	if scn.Isolation != scenario.IsolationReadCommitted {
		t.Fatalf("isolation = %q", scn.Isolation)
	}
}

func TestLoadStringRowsAndScans(t *testing.T) {
	scn, err := LoadString(`
		local s = Scenario.new("rows")
		s:row{id = 1, name = "Alice", dept = "Engineering"}
		s:actor("T1")
		s:begin("T1", 1)
		s:scan("T1", 2, "Engineering")
		s:commit("T1", 3)
		s:actor("T2")
		s:begin("T2", 1)
		s:insert("T2", 2, {id = 2, name = "Bob", dept = "Engineering"})
		s:commit("T2", 3)
		s:expect_rows{1, 2}
		return s
	`, "rows")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(scn.InitialRows) != 1 || scn.InitialRows[0].Name != "Alice" {
		t.Fatalf("rows = %+v", scn.InitialRows)
	}
	insert := scn.Actors[1].Operations[1]
	if insert.Row.ID != 2 || insert.Row.Dept != "Engineering" {
		t.Fatalf("insert row = %+v", insert.Row)
	}
	if len(scn.Expect.RowIDs) != 2 || scn.Expect.RowIDs[1] != 2 {
		t.Fatalf("expect rows = %v", scn.Expect.RowIDs)
	}
}

func TestLoadStringRejectsBadReturn(t *testing.T) {
	_, err := LoadString(`return 42`, "bad")
	if !stderrors.Is(err, errors.New(errors.CodeScriptBadReturn, "")) {
		t.Fatalf("err = %v, want %s", err, errors.CodeScriptBadReturn)
	}
}

func TestLoadStringRejectsBrokenScript(t *testing.T) {
	_, err := LoadString(`this is not lua`, "broken")
	if !stderrors.Is(err, errors.New(errors.CodeScriptLoadFailed, "")) {
		t.Fatalf("err = %v, want %s", err, errors.CodeScriptLoadFailed)
	}
}

func TestLoadStringRejectsUnknownActor(t *testing.T) {
	_, err := LoadString(`
		local s = Scenario.new("ghost")
		s:item("X", 1)
		s:begin("T9", 1)
		return s
	`, "ghost")
	if err == nil {
		t.Fatal("expected an error for an unknown actor")
	}
}

func TestLoadStringValidates(t *testing.T) {
	_, err := LoadString(`
		local s = Scenario.new("invalid")
		s:item("X", 1)
		s:actor("T1")
		s:read("T1", 1, "X")
		return s
	`, "invalid")
	if !stderrors.Is(err, errors.New(errors.CodeScenarioOpMissingBegin, "")) {
		t.Fatalf("err = %v, want %s", err, errors.CodeScenarioOpMissingBegin)
	}
}
