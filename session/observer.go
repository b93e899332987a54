package session

import (
	"time"

	"github.com/use-agent/tukibridge/models"
)

// Observer is notified of session events. Implementations must not block:
// they are called while the session lock is held.
type Observer interface {
	StateChanged(state State)
	SessionRestarted(reason string)
	ConditionUnmatched(kind models.Kind)
	FetchCompleted(kind models.Kind, res models.FetchResult, elapsed time.Duration)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(State) {}
func (NopObserver) SessionRestarted(string) {}
func (NopObserver) ConditionUnmatched(models.Kind) {}
func (NopObserver) FetchCompleted(models.Kind, models.FetchResult, time.Duration) {}

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) StateChanged(state State) {
	for _, ob := range o {
		ob.StateChanged(state)
	}
}

func (o Observers) SessionRestarted(reason string) {
	for _, ob := range o {
		ob.SessionRestarted(reason)
	}
}

func (o Observers) ConditionUnmatched(kind models.Kind) {
	for _, ob := range o {
		ob.ConditionUnmatched(kind)
	}
}

func (o Observers) FetchCompleted(kind models.Kind, res models.FetchResult, elapsed time.Duration) {
	for _, ob := range o {
		ob.FetchCompleted(kind, res, elapsed)
	}
}
