package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"coparent/internal/auth"
	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
)

// TextSender delivers a plain SMS. *notify.SMSChannel satisfies it.
type TextSender interface {
	Enabled() bool
	SendText(ctx context.Context, phone, text string) error
}

// Session is a signed-in user with an access token.
type Session struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
	// Created is set when this sign-in registered the user.
	Created bool
}

type AuthService struct {
	users  backend.UserStore
	tokens *auth.TokenIssuer
	otp    *auth.OTPManager
	sms    TextSender
	logger *log.Logger
}

func NewAuthService(users backend.UserStore, tokens *auth.TokenIssuer, otp *auth.OTPManager, sms TextSender, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		otp:    otp,
		sms:    sms,
		logger: logger.WithComponent(log.ComponentAuth),
	}
}

// Register creates an email and password user and signs them in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, core.ErrEmptyName
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	u, err := s.users.CreateUser(ctx, core.User{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)
	return s.session(u, true)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Session{}, auth.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := auth.CheckPassword(password, u.PasswordHash); err != nil {
		s.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return Session{}, err
	}
	return s.session(u, false)
}

// RequestOTP sends a one-time code to phone. Without an SMS gateway the code
// is only written to the debug log, which is how local setups sign in.
func (s *AuthService) RequestOTP(ctx context.Context, phone string) error {
	phone, err := auth.NormalizePhone(phone)
	if err != nil {
		return err
	}
	code, err := s.otp.RequestCode(phone)
	if err != nil {
		return err
	}
	if s.sms == nil || !s.sms.Enabled() {
		s.logger.DebugContext(ctx, "SMS gateway not configured, login code not sent", "phone", phone, "code", code)
		return nil
	}
	if err := s.sms.SendText(ctx, phone, fmt.Sprintf("Your login code is %s", code)); err != nil {
		return fmt.Errorf("send login code: %w", err)
	}
	return nil
}

// VerifyOTP checks a code and signs the phone's user in, creating the user
// on first sign-in. name is only used then.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code, name string) (Session, error) {
	phone, err := auth.NormalizePhone(phone)
	if err != nil {
		return Session{}, err
	}
	if err := s.otp.VerifyCode(phone, code); err != nil {
		return Session{}, err
	}

	u, err := s.users.GetUserByPhone(ctx, phone)
	switch {
	case err == nil:
		return s.session(u, false)
	case !errors.Is(err, core.ErrNotFound):
		return Session{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}
	u, err = s.users.CreateUser(ctx, core.User{Phone: phone, Name: name})
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "User registered by phone", log.FieldUserID, u.ID)
	return s.session(u, true)
}

// Authenticate resolves an access token to its user id.
func (s *AuthService) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.users.GetUser(ctx, userID)
}

func (s *AuthService) session(u core.User, created bool) (Session, error) {
	token, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	u.PasswordHash = ""
	return Session{User: u, Token: token, ExpiresAt: exp, Created: created}, nil
}
