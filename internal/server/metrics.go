package server

// MetricsReporter receives server lifecycle and traffic events. The chatd
// binary wires in the Prometheus collector; tests and the default run with
// the no-op reporter.
type MetricsReporter interface {
	ConnOpened()
	ConnClosed()
	UserRegistered()
	RoomCreated()
	MessageRecorded(kind string)
	DeliveryFailed()
	SendRateLimited()
	CommandDispatched(command string)
}

// Message kind label values passed to MessageRecorded.
const (
	kindPublic = "public"
	kindDirect = "direct"
	kindRoom   = "room"
)

type noopMetrics struct{}

func (noopMetrics) ConnOpened()              {}
func (noopMetrics) ConnClosed()              {}
func (noopMetrics) UserRegistered()          {}
func (noopMetrics) RoomCreated()             {}
func (noopMetrics) MessageRecorded(string)   {}
func (noopMetrics) DeliveryFailed()          {}
func (noopMetrics) SendRateLimited()         {}
func (noopMetrics) CommandDispatched(string) {}
