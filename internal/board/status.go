package board

import "fmt"

// Status is the lifecycle stage of an order or of a single item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusServed    Status = "served"
	StatusReady     Status = "ready"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusPreparing, StatusServed, StatusReady}

var transitions = map[Status]Status{
	StatusPending:   StatusPreparing,
	StatusPreparing: StatusServed,
	StatusServed:    StatusReady,
}

var actionLabels = map[Status]string{
	StatusPending:   "Start Preparing",
	StatusPreparing: "Mark Served",
	StatusServed:    "Mark Ready",
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusServed, StatusReady:
		return true
	}
	return false
}

// Next returns the status following s. Ready is terminal.
func (s Status) Next() (Status, bool) {
	next, ok := transitions[s]
	return next, ok
}

// ActionLabel is the staff-facing label of the transition out of s, empty
// when s is not actionable.
func (s Status) ActionLabel() string {
	return actionLabels[s]
}

func (s Status) String() string {
	return string(s)
}
