package domain

import "time"

// Participant is a named, currently-present chat user. The name is the
// primary key; there is at most one participant per name at any time.
type Participant struct {
	Name          string
	LastHeartbeat time.Time
}
