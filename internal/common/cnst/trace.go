package cnst

// TraceRealtime is the tracer name for the notification channel
const TraceRealtime = "liveadmin/realtime"

// Span names
const (
	SpanJoin    = "realtime.join"
	SpanPublish = "realtime.publish"
	SpanRelay   = "realtime.relay.forward"
)
