// Package services holds the use cases behind the HTTP API and the workers.
// Every operation that touches an account takes the acting user explicitly
// and checks membership before reading or writing.
package services

import (
	"context"
	"errors"
	"fmt"

	"coparent/internal/amqp"
	"coparent/internal/backend"
	"coparent/internal/core"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotMember    = errors.New("not a member of this account")
	ErrUnknownPayer = errors.New("payer is not a member of this account")
	ErrUnknownChild = errors.New("child does not belong to this account")
)

// Publisher hands domain events to whoever delivers notifications.
// *amqp.Client and *notify.InlinePublisher both satisfy it.
type Publisher interface {
	Publish(ctx context.Context, env *amqp.Envelope) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *amqp.Envelope) error { return nil }

// Invalidator drops cached computations for an account.
type Invalidator interface {
	Invalidate(accountID string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(string) {}

// requireMember returns the roster entry of userID in accountID.
func requireMember(ctx context.Context, members backend.MemberLister, accountID, userID string) (core.AccountMember, []core.AccountMember, error) {
	roster, err := members.ListMembers(ctx, accountID)
	if err != nil {
		return core.AccountMember{}, nil, fmt.Errorf("list members: %w", err)
	}
	m, ok := core.FindMember(roster, userID)
	if !ok {
		return core.AccountMember{}, nil, fmt.Errorf("account %s: %w", accountID, ErrNotMember)
	}
	return m, roster, nil
}

func requireAdmin(ctx context.Context, members backend.MemberLister, accountID, userID string) (core.AccountMember, error) {
	m, _, err := requireMember(ctx, members, accountID, userID)
	if err != nil {
		return core.AccountMember{}, err
	}
	if m.Role != core.RoleAdmin {
		return core.AccountMember{}, fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	return m, nil
}
