package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coparent/internal/amqp"
	"coparent/internal/core"
	"coparent/internal/log"
)

// Directory resolves who belongs to an account and how to reach them.
type Directory interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListMembers(ctx context.Context, accountID string) ([]core.AccountMember, error)
	GetUser(ctx context.Context, id string) (core.User, error)
}

// Dispatcher renders events into messages and fans them out over every
// enabled channel.
type Dispatcher struct {
	dir      Directory
	channels []Channel
	logger   *log.Logger
}

func NewDispatcher(dir Directory, logger *log.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	var enabled []Channel
	for _, ch := range channels {
		if ch != nil && ch.Enabled() {
			enabled = append(enabled, ch)
		}
	}
	return &Dispatcher{dir: dir, channels: enabled, logger: logger.WithComponent(log.ComponentNotify)}
}

// Channels lists the names of the enabled channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// HandleEvent delivers one event. The returned error joins every failed
// delivery; recipients the channel cannot address are skipped.
func (d *Dispatcher) HandleEvent(ctx context.Context, env *amqp.Envelope) error {
	msgs, err := d.compose(ctx, env)
	if err != nil {
		return err
	}

	var errs []error
	for _, msg := range msgs {
		for _, ch := range d.channels {
			err := ch.Send(ctx, msg)
			switch {
			case err == nil:
				d.logger.DebugContext(ctx, "Notification delivered",
					log.FieldEvent, env.Type, log.FieldChannel, ch.Name(), log.FieldRecipient, msg.To.UserID)
			case errors.Is(err, ErrNoAddress):
			default:
				d.logger.WarnContext(ctx, "Notification failed",
					log.FieldEvent, env.Type, log.FieldChannel, ch.Name(), log.FieldRecipient, msg.To.UserID, log.FieldError, err)
				errs = append(errs, fmt.Errorf("%s to %s: %w", ch.Name(), msg.To.UserID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) compose(ctx context.Context, env *amqp.Envelope) ([]Message, error) {
	account, err := d.dir.GetAccount(ctx, env.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	members, err := d.dir.ListMembers(ctx, env.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	var (
		targets       []core.AccountMember
		subject, text string
		data          any
	)
	switch env.Type {
	case amqp.EventExpenseCreated:
		ev, err := env.ExpenseEvent()
		if err != nil {
			return nil, err
		}
		actor := memberName(members, ev.ActorID)
		subject = fmt.Sprintf("New expense in %s", account.Name)
		text = fmt.Sprintf("%s added %q (%s, %s).", actor, ev.Description, core.Money{Agorot: ev.AmountAgorot}.Format(), ev.Category)
		if ev.ToStatus == string(core.StatusPending) {
			text += " It is waiting for approval."
		}
		targets = except(members, ev.ActorID)
		data = ev
	case amqp.EventExpenseStatusChanged:
		ev, err := env.ExpenseEvent()
		if err != nil {
			return nil, err
		}
		subject = fmt.Sprintf("Expense %s", ev.ToStatus)
		text = fmt.Sprintf("%s marked %q (%s) as %s.", memberName(members, ev.ActorID), ev.Description,
			core.Money{Agorot: ev.AmountAgorot}.Format(), ev.ToStatus)
		targets = except(members, ev.ActorID)
		data = ev
	case amqp.EventBudgetExceeded:
		ev, err := env.BudgetExceededEvent()
		if err != nil {
			return nil, err
		}
		subject = fmt.Sprintf("Budget exceeded in %s", account.Name)
		text = fmt.Sprintf("Spending on %s reached %s against a budget of %s for %s.",
			strings.Join(ev.Categories, ", "), core.Money{Agorot: ev.ActualAgorot}.Format(),
			core.Money{Agorot: ev.PlannedAgorot}.Format(), ev.Period)
		for _, m := range members {
			if m.Role == core.RoleAdmin {
				targets = append(targets, m)
			}
		}
		data = ev
	default:
		return nil, fmt.Errorf("%w: %s", amqp.ErrUnknownEvent, env.Type)
	}

	msgs := make([]Message, 0, len(targets))
	for _, m := range targets {
		u, err := d.dir.GetUser(ctx, m.UserID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				u = core.User{ID: m.UserID, Name: m.UserName}
			} else {
				return nil, fmt.Errorf("load user %s: %w", m.UserID, err)
			}
		}
		msgs = append(msgs, Message{
			AccountID: env.AccountID,
			Event:     env.Type,
			To:        Recipient{UserID: u.ID, Name: firstNonEmpty(u.Name, m.UserName), Email: u.Email, Phone: u.Phone},
			Subject:   subject,
			Text:      text,
			Data:      data,
		})
	}
	return msgs, nil
}

func except(members []core.AccountMember, userID string) []core.AccountMember {
	out := make([]core.AccountMember, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			out = append(out, m)
		}
	}
	return out
}

func memberName(members []core.AccountMember, userID string) string {
	if m, ok := core.FindMember(members, userID); ok && m.UserName != "" {
		return m.UserName
	}
	return "Someone"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// InlinePublisher hands events straight to a Dispatcher when no broker is
// configured. Delivery runs in the background, detached from the request.
type InlinePublisher struct {
	d      *Dispatcher
	logger *log.Logger
}

func NewInlinePublisher(d *Dispatcher, logger *log.Logger) *InlinePublisher {
	if logger == nil {
		logger = log.Discard()
	}
	return &InlinePublisher{d: d, logger: logger.WithComponent(log.ComponentNotify)}
}

func (p *InlinePublisher) Publish(ctx context.Context, env *amqp.Envelope) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.d.HandleEvent(ctx, env); err != nil {
			p.logger.WarnContext(ctx, "Inline notification failed", log.FieldEvent, env.Type, log.FieldError, err)
		}
	}()
	return nil
}
