package webhook

import (
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/session"
)

// Event types emitted by Notifier.
const (
	EventSessionRestarted = "session.restarted"
	EventFetchFailed      = "fetch.failed"
)

// RestartData is the payload of a session.restarted event.
type RestartData struct {
	Reason string `json:"reason"`
}

// FetchFailedData is the payload of a fetch.failed event.
type FetchFailedData struct {
	Kind      string `json:"kind"`
	Failure   string `json:"failure"`
	Message   string `json:"message"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Notifier is a session.Observer that posts restarts and failed fetches to a
// webhook endpoint. Delivery never blocks the caller.
type Notifier struct {
	session.NopObserver

	url    string
	secret string
	now    func() time.Time
	send   func(url, secret string, event *Event)
}

// NewNotifier returns a Notifier posting to url, or nil when url is empty.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{url: url, secret: secret, now: time.Now, send: DeliverAsync}
}

func (n *Notifier) SessionRestarted(reason string) {
	n.emit(EventSessionRestarted, RestartData{Reason: reason})
}

// FetchCompleted reports failures other than an explicit "no data" answer.
func (n *Notifier) FetchCompleted(kind models.Kind, res models.FetchResult, elapsed time.Duration) {
	if res.Success || !res.Failure.NeedsRestart() {
		return
	}
	n.emit(EventFetchFailed, FetchFailedData{
		Kind:      string(kind),
		Failure:   string(res.Failure),
		Message:   res.Message,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

func (n *Notifier) emit(typ string, data any) {
	n.send(n.url, n.secret, &Event{
		Type:      typ,
		ID:        uuid.NewString(),
		Timestamp: n.now().Unix(),
		Data:      data,
	})
}
