package journal

import "time"

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	Time         time.Time `json:"time"`
	Device       string    `json:"device"`
	Kind         string    `json:"kind"`
	EndpointID   string    `json:"endpoint_id,omitempty"`
	EndpointKind string    `json:"endpoint_kind,omitempty"`
	RefCounted   bool      `json:"ref_counted"`
	RefCount     int       `json:"ref_count"`
	Error        string    `json:"error,omitempty"`
}

// Drop is one discarded malformed message.
type Drop struct {
	ID     string    `json:"id"`
	Seq    int64     `json:"seq"`
	Time   time.Time `json:"time"`
	Device string    `json:"device"`
	Form   string    `json:"form"`
	Error  string    `json:"error"`
}

// Query selects entries. The zero value returns the DefaultLimit newest
// entries of all devices.
type Query struct {
	Device string
	Kind   string
	Limit  int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}
