package service

// Standard logging field names. Use these exact names so log lines stay
// queryable across components.
const (
	LogFieldUserID     = "user_id"
	LogFieldPeerID     = "peer_id"
	LogFieldSenderID   = "sender_id"
	LogFieldReceiverID = "receiver_id"
	LogFieldMessageID  = "message_id"
	LogFieldReason     = "reason"
	LogFieldCount      = "count"
	LogFieldComponent  = "component"
	LogFieldOperation  = "operation"

	// HTTP / transport
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldDuration   = "duration_ms"
)
