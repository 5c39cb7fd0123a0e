package app

import (
	"github.com/nats-io/nats.go"

	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// ConnectedMsg is sent when the bus connection and event subscriptions are up.
type ConnectedMsg struct {
	Client *bus.Client
	Events chan *nats.Msg
}

// ConnectErrorMsg is sent when the bus connection fails.
type ConnectErrorMsg struct {
	Err error
}

// BusEventMsg wraps one raw message from the event subscriptions.
type BusEventMsg struct {
	Msg *nats.Msg
}

// EventStreamClosedMsg is sent when the event channel closes.
type EventStreamClosedMsg struct{}

// AckMsg carries the daemon reply to an ingest control request.
type AckMsg struct {
	Action string
	Ack    protocol.IngestAck
}

// RequestErrorMsg is sent when a bus request fails outright.
type RequestErrorMsg struct {
	Action string
	Err    error
}

// CorrectResponseMsg carries the reply to a correction request.
type CorrectResponseMsg struct {
	Response protocol.CorrectResponse
}

// RescoreSentMsg confirms a rescore request was published.
type RescoreSentMsg struct{}

// ExportDoneMsg reports the outcome of writing a report to disk.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// ClearTransientErrorMsg clears the error banner after a timeout.
type ClearTransientErrorMsg struct{}
