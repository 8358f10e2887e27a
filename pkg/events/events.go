package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds carried over the live stream. The envelope itself stays
// opaque to the transport layer; discrimination happens at the consumer.
const (
	KindTagScanned = "tag_scanned"
	KindTheftAlert = "theft_alert"
	KindTagLinked  = "tag_linked"
	KindHeartbeat  = "heartbeat"
	KindPing       = "ping"
	KindPong       = "pong"
)

// Envelope is the JSON wire frame exchanged with the event source:
// a kind discriminator plus an opaque payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope with the payload JSON-encoded in place.
func New(kind string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encoding %s payload: %w", kind, err)
	}
	return Envelope{Type: kind, Data: data}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("events: %s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("events: decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// TagScan is the payload of a tag_scanned event: one RFID read at a gate.
type TagScan struct {
	ID      string    `json:"id,omitempty"`
	EPC     string    `json:"epc"`
	Barcode string    `json:"barcode,omitempty"`
	StoreID string    `json:"store_id,omitempty"`
	GateID  string    `json:"gate_id,omitempty"`
	At      time.Time `json:"at"`
}

// TheftAlert is the payload of a theft_alert event: an unpaid tag crossed
// an exit gate.
type TheftAlert struct {
	ID       string    `json:"id,omitempty"`
	EPC      string    `json:"epc"`
	StoreID  string    `json:"store_id,omitempty"`
	GateID   string    `json:"gate_id,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// TagLinked is the payload of a tag_linked event: an EPC was bound to a
// product barcode.
type TagLinked struct {
	EPC     string    `json:"epc"`
	Barcode string    `json:"barcode"`
	Product string    `json:"product,omitempty"`
	At      time.Time `json:"at"`
}
