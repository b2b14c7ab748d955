package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"coparent/internal/auth"
	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
	"coparent/internal/notify"
)

// InvitationTTL is how long an invitation link stays valid.
const InvitationTTL = 7 * 24 * time.Hour

var (
	ErrInvitationUnusable = errors.New("invitation is expired or already used")
	ErrNoContact          = errors.New("an email or a phone number is required")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	Invitation  core.Invitation
	AccountName string
	InviterName string
}

type InvitationService struct {
	store       backend.Store
	invalidator Invalidator
	channels    []notify.Channel
	frontendURL string
	logger      *log.Logger
	now         func() time.Time
}

// NewInvitationService delivers invitation links over the given channels;
// disabled channels are ignored. invalidator is told when a roster grows.
func NewInvitationService(store backend.Store, invalidator Invalidator, frontendURL string, logger *log.Logger, channels ...notify.Channel) *InvitationService {
	if logger == nil {
		logger = log.Discard()
	}
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	var enabled []notify.Channel
	for _, ch := range channels {
		if ch != nil && ch.Enabled() {
			enabled = append(enabled, ch)
		}
	}
	return &InvitationService{
		store:       store,
		invalidator: invalidator,
		channels:    enabled,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.WithComponent(log.ComponentInvitation),
		now:         time.Now,
	}
}

// Invite creates an invitation to accountID for an email address, a phone
// number or both, and sends the link. Delivery failures are logged only;
// the returned invitation carries the token so the link can be shared by hand.
func (s *InvitationService) Invite(ctx context.Context, actorID, accountID, email, phone string) (core.Invitation, error) {
	inviter, err := requireAdmin(ctx, s.store, accountID, actorID)
	if err != nil {
		return core.Invitation{}, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return core.Invitation{}, ErrNoContact
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return core.Invitation{}, fmt.Errorf("%w: %s", ErrInvalidEmail, email)
		}
	}
	if phone != "" {
		if phone, err = auth.NormalizePhone(phone); err != nil {
			return core.Invitation{}, err
		}
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Invitation{}, err
	}

	now := s.now().UTC()
	inv, err := s.store.CreateInvitation(ctx, core.Invitation{
		AccountID: accountID,
		Email:     email,
		Phone:     phone,
		Token:     uuid.NewString(),
		InvitedBy: actorID,
		Status:    core.InvitationPending,
		ExpiresAt: now.Add(InvitationTTL),
		CreatedAt: now,
	})
	if err != nil {
		return core.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}

	s.deliver(ctx, inv, account.Name, firstNonEmpty(inviter.UserName, "A member"))
	return inv, nil
}

// Link is the frontend URL that accepts inv.
func (s *InvitationService) Link(inv core.Invitation) string {
	return s.frontendURL + "/invite/" + inv.Token
}

func (s *InvitationService) deliver(ctx context.Context, inv core.Invitation, accountName, inviterName string) {
	msg := notify.Message{
		AccountID: inv.AccountID,
		Event:     "invitation",
		To:        notify.Recipient{Email: inv.Email, Phone: inv.Phone},
		Subject:   fmt.Sprintf("%s invited you to %s", inviterName, accountName),
		Text: fmt.Sprintf("%s invited you to share expenses in %s. Join here: %s",
			inviterName, accountName, s.Link(inv)),
	}
	for _, ch := range s.channels {
		err := ch.Send(ctx, msg)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "Invitation sent", log.FieldAccountID, inv.AccountID, log.FieldChannel, ch.Name())
		case errors.Is(err, notify.ErrNoAddress):
		default:
			s.logger.WarnContext(ctx, "Invitation delivery failed",
				log.FieldAccountID, inv.AccountID, log.FieldChannel, ch.Name(), log.FieldError, err)
		}
	}
}

// Preview resolves a token for the landing page.
func (s *InvitationService) Preview(ctx context.Context, token string) (InvitationPreview, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return InvitationPreview{}, err
	}
	if !inv.IsUsable(s.now()) {
		return InvitationPreview{}, ErrInvitationUnusable
	}
	account, err := s.store.GetAccount(ctx, inv.AccountID)
	if err != nil {
		return InvitationPreview{}, err
	}
	p := InvitationPreview{Invitation: inv, AccountName: account.Name}
	if u, err := s.store.GetUser(ctx, inv.InvitedBy); err == nil {
		p.InviterName = u.Name
	}
	return p, nil
}

// Accept adds userID to the invitation's account as a member. The
// invitation is closed first with a conditional write so a token works once.
func (s *InvitationService) Accept(ctx context.Context, userID, token string) (core.Account, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return core.Account{}, err
	}
	now := s.now().UTC()
	if !inv.IsUsable(now) {
		return core.Account{}, ErrInvitationUnusable
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return core.Account{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.store.CloseInvitation(ctx, inv.ID, core.InvitationAccepted, userID, now); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.Account{}, ErrInvitationUnusable
		}
		return core.Account{}, fmt.Errorf("close invitation: %w", err)
	}
	err = s.store.AddMember(ctx, inv.AccountID, core.AccountMember{
		UserID: userID, UserName: user.Name, Role: core.RoleMember, JoinedAt: now,
	})
	if err != nil && !errors.Is(err, core.ErrAlreadyExists) {
		return core.Account{}, fmt.Errorf("add member: %w", err)
	}
	s.invalidator.Invalidate(inv.AccountID)

	s.logger.InfoContext(ctx, "Invitation accepted", log.FieldAccountID, inv.AccountID, log.FieldUserID, userID)
	return s.store.GetAccount(ctx, inv.AccountID)
}

func (s *InvitationService) ListInvitations(ctx context.Context, actorID, accountID string) ([]core.Invitation, error) {
	if _, err := requireAdmin(ctx, s.store, accountID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, accountID)
}

// CancelInvitation withdraws a pending invitation.
func (s *InvitationService) CancelInvitation(ctx context.Context, actorID, accountID, invitationID string) error {
	if _, err := requireAdmin(ctx, s.store, accountID, actorID); err != nil {
		return err
	}
	invs, err := s.store.ListInvitations(ctx, accountID)
	if err != nil {
		return err
	}
	for _, inv := range invs {
		if inv.ID == invitationID {
			return s.store.CloseInvitation(ctx, inv.ID, core.InvitationCanceled, actorID, s.now().UTC())
		}
	}
	return fmt.Errorf("invitation %s: %w", invitationID, core.ErrNotFound)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
