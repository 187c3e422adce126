package realtime

// Join results reported to the Recorder
const (
	JoinAccepted          = "accepted"
	JoinInvalidCredential = "invalid_credential"
	JoinMalformed         = "malformed"
)

// Recorder receives channel statistics; *metrics.Metrics implements it
type Recorder interface {
	SetOnline(n int)
	JoinResult(result string)
	EventPublished(kind string)
	Delivery(result string)
	Relayed(direction string)
}

type nopRecorder struct{}

func (nopRecorder) SetOnline(int)         {}
func (nopRecorder) JoinResult(string)     {}
func (nopRecorder) EventPublished(string) {}
func (nopRecorder) Delivery(string)       {}
func (nopRecorder) Relayed(string)        {}

// Delivery results reported to the Recorder
const (
	DeliverySent    = "sent"
	DeliveryDropped = "dropped"
)
