// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Scenario definition errors
	CodeScenarioIDEmpty           Code = "SCENARIO_ID_EMPTY"
	CodeScenarioNoActors          Code = "SCENARIO_NO_ACTORS"
	CodeScenarioActorIDEmpty      Code = "SCENARIO_ACTOR_ID_EMPTY"
	CodeScenarioActorIDDuplicate  Code = "SCENARIO_ACTOR_ID_DUPLICATE"
	CodeScenarioActorUnknown      Code = "SCENARIO_ACTOR_UNKNOWN"
	CodeScenarioItemUnknown       Code = "SCENARIO_ITEM_UNKNOWN"
	CodeScenarioOpTypeInvalid     Code = "SCENARIO_OP_TYPE_INVALID"
	CodeScenarioOpOutOfOrder      Code = "SCENARIO_OP_OUT_OF_ORDER"
	CodeScenarioOpMissingBegin    Code = "SCENARIO_OP_MISSING_BEGIN"
	CodeScenarioOpAfterFinish     Code = "SCENARIO_OP_AFTER_FINISH"
	CodeScenarioMomentOutOfRange  Code = "SCENARIO_MOMENT_OUT_OF_RANGE"
	CodeScenarioIsolationInvalid  Code = "SCENARIO_ISOLATION_INVALID"
	CodeScenarioPredicateRequired Code = "SCENARIO_PREDICATE_REQUIRED"
	CodeScenarioWriteBeforeRead   Code = "SCENARIO_WRITE_BEFORE_READ"
	CodeScenarioRowIDDuplicate    Code = "SCENARIO_ROW_ID_DUPLICATE"

	// Replay errors
	CodeReplayStepOutOfRange Code = "REPLAY_STEP_OUT_OF_RANGE"

	// Playback errors
	CodePlaybackRunning      Code = "PLAYBACK_RUNNING"
	CodePlaybackSpeedInvalid Code = "PLAYBACK_SPEED_INVALID"

	// Lua scenario script errors
	CodeScriptLoadFailed Code = "SCRIPT_LOAD_FAILED"
	CodeScriptBadReturn  Code = "SCRIPT_BAD_RETURN"

	// Catalog/session errors
	CodeScenarioNotFound Code = "SCENARIO_NOT_FOUND"
	CodeSessionNotFound  Code = "SESSION_NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeScenarioIDEmpty,
		CodeScenarioNoActors,
		CodeScenarioActorIDEmpty,
		CodeScenarioActorIDDuplicate,
		CodeScenarioActorUnknown,
		CodeScenarioItemUnknown,
		CodeScenarioOpTypeInvalid,
		CodeScenarioOpOutOfOrder,
		CodeScenarioOpMissingBegin,
		CodeScenarioOpAfterFinish,
		CodeScenarioMomentOutOfRange,
		CodeScenarioIsolationInvalid,
		CodeScenarioPredicateRequired,
		CodeScenarioWriteBeforeRead,
		CodeScenarioRowIDDuplicate,
		CodeReplayStepOutOfRange,
		CodePlaybackSpeedInvalid,
		CodeScriptLoadFailed,
		CodeScriptBadReturn:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodePlaybackRunning:
		return http.StatusConflict

	// Not found
	case CodeScenarioNotFound,
		CodeSessionNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
