package realtime

import (
	"encoding/json"
	"time"
)

// Domain identifies which kind of cached data a broadcast concerns.
// The set is closed: clients treat anything else as "invalidate everything".
type Domain string

const (
	DomainReservations        Domain = "reservations"
	DomainRooms               Domain = "rooms"
	DomainGuests              Domain = "guests"
	DomainAnalytics           Domain = "analytics"
	DomainRestaurantOrders    Domain = "restaurant-orders"
	DomainRestaurantKOT       Domain = "restaurant-kot"
	DomainRestaurantBills     Domain = "restaurant-bills"
	DomainRestaurantDashboard Domain = "restaurant-dashboard"
)

// Domains lists every defined domain tag.
var Domains = []Domain{
	DomainReservations,
	DomainRooms,
	DomainGuests,
	DomainAnalytics,
	DomainRestaurantOrders,
	DomainRestaurantKOT,
	DomainRestaurantBills,
	DomainRestaurantDashboard,
}

// Valid reports whether d is one of the defined domain tags.
func (d Domain) Valid() bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

// EventDataUpdate is the only event kind currently on the wire.
const EventDataUpdate = "data_update"

// Envelope is the server-to-client broadcast message.
type Envelope struct {
	Event     string    `json:"event"`
	Data      EventData `json:"data"`
	Timestamp string    `json:"timestamp"`
}

// EventData carries the domain tag of a data_update event.
type EventData struct {
	Type Domain `json:"type"`
}

// NewEnvelope builds a data_update envelope. The timestamp is informational
// only and carries no ordering guarantee.
func NewEnvelope(domain Domain, now time.Time) Envelope {
	return Envelope{
		Event:     EventDataUpdate,
		Data:      EventData{Type: domain},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// ParseEnvelope decodes a broadcast frame. Returns false for malformed JSON
// or anything that is not a data_update event; such frames are discarded.
func ParseEnvelope(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Event != EventDataUpdate {
		return Envelope{}, false
	}
	return env, true
}

const handshakeType = "auth"

// Handshake is the first message a client sends after the socket opens.
// Identity and branch are opaque and unverified: the branch only filters
// which broadcasts the connection receives, it grants nothing.
type Handshake struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	BranchID  string `json:"branchId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewHandshake builds the auth message a client sends on open.
func NewHandshake(userID, branchID string, now time.Time) Handshake {
	return Handshake{
		Type:      handshakeType,
		UserID:    userID,
		BranchID:  branchID,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// ParseHandshake decodes an inbound client frame. Returns false for
// malformed JSON or non-auth messages; both are ignored silently.
func ParseHandshake(data []byte) (Handshake, bool) {
	var hs Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return Handshake{}, false
	}
	if hs.Type != handshakeType {
		return Handshake{}, false
	}
	return hs, true
}
