package logging

// Standardized field names. Keep these stable: the event stream and the
// CLI both key off them.
const (
	FieldComponent     = "component"
	FieldStage         = "stage"
	FieldJobID         = "job_id"
	FieldItemID        = "item_id"
	FieldAccountID     = "account_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldResultKind    = "result_kind"
	FieldCorrelationID = "correlation_id"
)
