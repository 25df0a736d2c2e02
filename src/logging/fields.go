package logging

// Canonical field names for structured logging.
const (
	FieldSessionID = "session_id"
	FieldRunID     = "run_id"
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldOpCode    = "op"
	FieldSequence  = "seq"
	FieldCloseCode = "close_code"
	FieldHandler   = "handler"
	FieldPath      = "path"
	FieldURL       = "url"
	FieldOldPhase  = "old_phase"
	FieldNewPhase  = "new_phase"
)
