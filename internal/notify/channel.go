// Package notify turns account events into messages and delivers them over
// push, email and SMS.
package notify

import (
	"context"
	"errors"
)

// ErrNoAddress means the recipient has nothing this channel can reach.
var ErrNoAddress = errors.New("recipient has no address for channel")

type Recipient struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

type Message struct {
	AccountID string
	Event     string
	To        Recipient
	Subject   string
	Text      string
	// Data is sent as-is to push clients.
	Data any
}

// Channel delivers a message over one medium.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}
