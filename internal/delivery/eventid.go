package delivery

import (
	"strings"
	"sync/atomic"
)

// EventID holds the current event identifier pushed over a transport's side
// channel. Updates are last-seen-wins. A message built concurrently with an
// update may carry either value; nothing orders the two.
type EventID struct {
	v atomic.Value // string
}

// Set stores a new event id; surrounding whitespace is dropped
func (e *EventID) Set(id string) {
	e.v.Store(strings.TrimSpace(id))
}

// Get returns the current event id, or "" if none was seen
func (e *EventID) Get() string {
	if e == nil {
		return ""
	}
	id, _ := e.v.Load().(string)
	return id
}
