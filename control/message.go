// Package control carries the toggle state between the control surface and
// running pages: a persisted boolean flipped by the operator, broadcast to
// every attached page as a TOGGLE_STATE message. Delivery is best-effort:
// a page that fails to take a message is logged and skipped, never fatal.
package control

// TypeToggleState is the message type for enable/disable transitions.
const TypeToggleState = "TOGGLE_STATE"

// Message is the inbound message delivered to page pipelines.
type Message struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}
