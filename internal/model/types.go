package model

import "time"

// Category identifies which SSH session lifecycle event a log line describes.
type Category int

const (
	LoginSucceeded Category = iota
	LoginFailed
	Disconnected
)

// Categories lists every category in classification order.
var Categories = []Category{LoginSucceeded, LoginFailed, Disconnected}

// String returns the configuration token for the category
// ("accepted", "failed", "disconnected").
func (c Category) String() string {
	switch c {
	case LoginSucceeded:
		return "accepted"
	case LoginFailed:
		return "failed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Label is the human-readable heading used in notifications.
func (c Category) Label() string {
	switch c {
	case LoginSucceeded:
		return "Successful SSH login"
	case LoginFailed:
		return "Failed SSH login"
	case Disconnected:
		return "SSH disconnection"
	default:
		return "SSH event"
	}
}

// Priority derives the fixed notification priority of the category.
func (c Category) Priority() Priority {
	switch c {
	case LoginSucceeded:
		return High
	case LoginFailed:
		return Low
	default:
		return Normal
	}
}

// Priority is the urgency attached to a notification.
type Priority int

const (
	Normal Priority = iota
	High
	Low
)

// String returns the ntfy priority name sent in the Priority header.
func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Low:
		return "min"
	default:
		return "default"
	}
}

// Event is a classified, notification-worthy occurrence taken from one log line.
type Event struct {
	Category   Category
	User       string
	SourceIP   string // as written in the log line, not validated
	Priority   Priority
	Raw        string
	ObservedAt time.Time
}

// Key returns the identity used to suppress repeat notifications.
func (e Event) Key() DedupKey {
	return DedupKey{Category: e.Category, User: e.User, SourceIP: e.SourceIP}
}

// DedupKey is the (category, user, source address) tuple two events must share
// to count as the same occurrence.
type DedupKey struct {
	Category Category
	User     string
	SourceIP string
}

// DeliveryStatus is the terminal state of one notification attempt.
// The zero value is Failed.
type DeliveryStatus int

const (
	Failed DeliveryStatus = iota
	Delivered
)

func (s DeliveryStatus) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "failed"
}

// DeliveryOutcome records the result of pushing one notification.
// StatusCode is zero when no HTTP response was received.
type DeliveryOutcome struct {
	Status     DeliveryStatus
	StatusCode int
	Reason     string
}

// OK reports whether the notification was accepted by the endpoint.
func (o DeliveryOutcome) OK() bool { return o.Status == Delivered }
