// Package lua loads user-authored scenarios from Lua scripts. A script builds
// a scenario through a small DSL and returns it:
//
//	local s = Scenario.new("my-lost-update")
//	s:isolation("read-committed")
//	s:item("Balance", 100)
//	s:actor("T1", "#3b82f6")
//	s:begin("T1", 1)
//	s:read("T1", 3, "Balance")
//	s:write("T1", 5, "Balance", -20)
//	s:commit("T1", 7)
//	s:moment{step = 3, title_key = "...", body_key = "...", auto_pause = true}
//	s:expect_item("Balance", 80)
//	return s
//
// Loaded scenarios pass through the same validation as built-in ones.
package lua

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/isoviz/isoviz/internal/platform/errors"
	"github.com/isoviz/isoviz/internal/scenario"
)

const scenarioTypeName = "isoviz.scenario"

// LoadFile runs the script at path and returns the scenario it builds. A
// blank scenario id defaults to the file name.
func LoadFile(path string) (*scenario.Scenario, error) {
	state := newState()
	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, errors.Wrap(errors.CodeScriptLoadFailed,
			fmt.Sprintf("load script %s", path), err)
	}
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return run(state, fallback)
}

// LoadString runs an in-memory script. A blank scenario id defaults to name.
func LoadString(source, name string) (*scenario.Scenario, error) {
	state := newState()
	if err := lua.LoadString(state, source); err != nil {
		return nil, errors.Wrap(errors.CodeScriptLoadFailed,
			fmt.Sprintf("load script %s", name), err)
	}
	return run(state, name)
}

func newState() *lua.State {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerScenarioType(state)
	registerScenarioConstructor(state)
	return state
}

func run(state *lua.State, fallbackID string) (*scenario.Scenario, error) {
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, errors.Wrap(errors.CodeScriptLoadFailed, "run script", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, errors.New(errors.CodeScriptBadReturn, "script must return a Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	scn, ok := ud.(*scenario.Scenario)
	if !ok || scn == nil {
		return nil, errors.New(errors.CodeScriptBadReturn, "script returned an unexpected value")
	}

	if strings.TrimSpace(scn.ID) == "" {
		scn.ID = fallbackID
	}
	if scn.NameKey == "" {
		scn.NameKey = "scenario." + scn.ID + ".name"
	}
	if scn.Isolation == "" {
		scn.Isolation = scenario.IsolationReadCommitted
	}
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	return scn, nil
}

func registerScenarioType(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerScenarioConstructor(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, scenarioConstructor, 0)
	state.SetGlobal("Scenario")
}

var scenarioConstructor = []lua.RegistryFunction{
	{Name: "new", Function: scenarioNew},
}

func scenarioNew(state *lua.State) int {
	id := lua.OptString(state, 1, "")
	scn := &scenario.Scenario{ID: id}
	state.PushUserData(scn)
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "isolation", Function: scenarioIsolation},
	{Name: "name_key", Function: scenarioNameKey},
	{Name: "summary_key", Function: scenarioSummaryKey},
	{Name: "item", Function: scenarioItem},
	{Name: "row", Function: scenarioRow},
	{Name: "actor", Function: scenarioActor},
	{Name: "begin", Function: scenarioBegin},
	{Name: "read", Function: scenarioRead},
	{Name: "write", Function: scenarioWrite},
	{Name: "insert", Function: scenarioInsert},
	{Name: "scan", Function: scenarioScan},
	{Name: "commit", Function: scenarioCommit},
	{Name: "abort", Function: scenarioAbort},
	{Name: "moment", Function: scenarioMoment},
	{Name: "expect_item", Function: scenarioExpectItem},
	{Name: "expect_rows", Function: scenarioExpectRows},
}

func checkScenario(state *lua.State) *scenario.Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scn, ok := ud.(*scenario.Scenario); ok && scn != nil {
		return scn
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func scenarioIsolation(state *lua.State) int {
	scn := checkScenario(state)
	scn.Isolation = scenario.Isolation(lua.CheckString(state, 2))
	return 0
}

func scenarioNameKey(state *lua.State) int {
	scn := checkScenario(state)
	scn.NameKey = lua.CheckString(state, 2)
	return 0
}

func scenarioSummaryKey(state *lua.State) int {
	scn := checkScenario(state)
	scn.SummaryKey = lua.CheckString(state, 2)
	return 0
}

func scenarioItem(state *lua.State) int {
	scn := checkScenario(state)
	item := lua.CheckString(state, 2)
	value := lua.CheckInteger(state, 3)
	if scn.InitialItems == nil {
		scn.InitialItems = map[string]int64{}
	}
	scn.InitialItems[item] = int64(value)
	return 0
}

func scenarioRow(state *lua.State) int {
	scn := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	scn.InitialRows = append(scn.InitialRows, rowFromTable(state, 2))
	return 0
}

func scenarioActor(state *lua.State) int {
	scn := checkScenario(state)
	id := lua.CheckString(state, 2)
	color := lua.OptString(state, 3, "")
	scn.Actors = append(scn.Actors, scenario.Actor{ID: id, Color: color})
	return 0
}

func scenarioBegin(state *lua.State) int {
	appendOp(state, scenario.Operation{Type: scenario.OpBegin})
	return 0
}

func scenarioRead(state *lua.State) int {
	appendOp(state, scenario.Operation{
		Type: scenario.OpRead,
		Item: lua.CheckString(state, 4),
	})
	return 0
}

func scenarioWrite(state *lua.State) int {
	appendOp(state, scenario.Operation{
		Type:  scenario.OpWrite,
		Item:  lua.CheckString(state, 4),
		Delta: int64(lua.CheckInteger(state, 5)),
	})
	return 0
}

func scenarioInsert(state *lua.State) int {
	lua.CheckType(state, 4, lua.TypeTable)
	appendOp(state, scenario.Operation{
		Type: scenario.OpInsert,
		Row:  rowFromTable(state, 4),
	})
	return 0
}

func scenarioScan(state *lua.State) int {
	appendOp(state, scenario.Operation{
		Type:      scenario.OpScan,
		Predicate: lua.CheckString(state, 4),
	})
	return 0
}

func scenarioCommit(state *lua.State) int {
	appendOp(state, scenario.Operation{Type: scenario.OpCommit})
	return 0
}

func scenarioAbort(state *lua.State) int {
	appendOp(state, scenario.Operation{Type: scenario.OpAbort})
	return 0
}

// appendOp attaches an operation to the actor named at argument 2, taking the
// operation time from argument 3.
func appendOp(state *lua.State, op scenario.Operation) {
	scn := checkScenario(state)
	actorID := lua.CheckString(state, 2)
	op.Time = lua.CheckInteger(state, 3)

	for i := range scn.Actors {
		if scn.Actors[i].ID == actorID {
			scn.Actors[i].Operations = append(scn.Actors[i].Operations, op)
			return
		}
	}
	lua.ArgumentError(state, 2, fmt.Sprintf("unknown actor %q", actorID))
}

func scenarioMoment(state *lua.State) int {
	scn := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	data := tableToMap(state, 2)

	moment := scenario.KeyMoment{
		Step:      intField(data, "step"),
		TitleKey:  stringField(data, "title_key"),
		BodyKey:   stringField(data, "body_key"),
		AutoPause: boolField(data, "auto_pause"),
	}
	if highlights, ok := data["highlights"].([]any); ok {
		for _, h := range highlights {
			if s, ok := h.(string); ok {
				moment.Highlights = append(moment.Highlights, s)
			}
		}
	}
	scn.Moments = append(scn.Moments, moment)
	return 0
}

func scenarioExpectItem(state *lua.State) int {
	scn := checkScenario(state)
	item := lua.CheckString(state, 2)
	value := lua.CheckInteger(state, 3)
	if scn.Expect.Items == nil {
		scn.Expect.Items = map[string]int64{}
	}
	scn.Expect.Items[item] = int64(value)
	return 0
}

func scenarioExpectRows(state *lua.State) int {
	scn := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	state.Length(2)
	n, _ := state.ToInteger(-1)
	state.Pop(1)
	for i := 1; i <= n; i++ {
		state.RawGetInt(2, i)
		if id, ok := state.ToInteger(-1); ok {
			scn.Expect.RowIDs = append(scn.Expect.RowIDs, int64(id))
		}
		state.Pop(1)
	}
	return 0
}

func rowFromTable(state *lua.State, index int) scenario.Row {
	data := tableToMap(state, index)
	return scenario.Row{
		ID:   int64(intField(data, "id")),
		Name: stringField(data, "name"),
		Dept: stringField(data, "dept"),
	}
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return value
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToSlice(state, index)
	default:
		return nil
	}
}

// tableToSlice converts a positional Lua table; moment highlights are the
// only nested tables the DSL accepts.
func tableToSlice(state *lua.State, index int) []any {
	index = state.AbsIndex(index)
	state.Length(index)
	n, _ := state.ToInteger(-1)
	state.Pop(1)

	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		state.RawGetInt(index, i)
		out = append(out, luaToGo(state, -1))
		state.Pop(1)
	}
	return out
}

func intField(data map[string]any, key string) int {
	if value, ok := data[key].(float64); ok {
		return int(value)
	}
	return 0
}

func stringField(data map[string]any, key string) string {
	value, _ := data[key].(string)
	return value
}

func boolField(data map[string]any, key string) bool {
	value, _ := data[key].(bool)
	return value
}
