package cache

import "time"

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one published state of a key. An Entry is never modified after it
// has been handed to the store; replacements publish a new value.
//
// Invariants: StatusSuccess implies HasData and a nil Err; StatusError
// implies a non-nil Err; Fetching is true only while Status is
// StatusPending. A pending entry may still carry the previous Data while a
// refetch is in progress.
type Entry struct {
	Status    Status
	Data      any
	HasData   bool
	Err       error
	UpdatedAt time.Time

	// Stale marks data that is still servable but must be refetched on the
	// next evaluation.
	Stale bool

	// Fetching is set while a fetch for the key is in flight.
	Fetching bool

	// Version increases by one with every publication for the key.
	Version uint64
}

// Refreshing reports whether a refetch is running over previously loaded
// data.
func (e *Entry) Refreshing() bool {
	return e != nil && e.Status == StatusPending && e.HasData
}

// idleEntry is returned for keys that have never been fetched.
var idleEntry = &Entry{Status: StatusIdle}

// Idle returns the shared entry used for keys with no state.
func Idle() *Entry { return idleEntry }

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
