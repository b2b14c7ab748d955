package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrOTPCooldown     = errors.New("code requested too recently")
	ErrOTPExpired      = errors.New("code expired")
	ErrOTPInvalid      = errors.New("invalid code")
	ErrOTPLocked       = errors.New("too many attempts")
	ErrOTPNotRequested = errors.New("no code requested")
	ErrInvalidPhone    = errors.New("invalid phone number")
)

// CooldownError tells the caller how long to wait before asking again.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v, retry in %s", ErrOTPCooldown, e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrOTPCooldown }

type OTPConfig struct {
	Cooldown    time.Duration
	TTL         time.Duration
	MaxAttempts int
}

// challenge is one outstanding code for a phone number. The code is the
// TOTP value of a fresh secret at the issue time, so only the secret is kept.
type challenge struct {
	secret   string
	issuedAt time.Time
	attempts int
	locked   bool
}

// OTPManager tracks phone verification challenges in memory.
type OTPManager struct {
	cfg OTPConfig
	now func() time.Time

	mu         sync.Mutex
	challenges map[string]*challenge
}

var codeOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func NewOTPManager(cfg OTPConfig) *OTPManager {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &OTPManager{
		cfg:        cfg,
		now:        time.Now,
		challenges: make(map[string]*challenge),
	}
}

// RequestCode starts a new challenge for phone and returns the code to send.
// A previous challenge is replaced once the cooldown has passed.
func (m *OTPManager) RequestCode(phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c, ok := m.challenges[phone]; ok {
		if wait := c.issuedAt.Add(m.cfg.Cooldown).Sub(now); wait > 0 {
			return "", &CooldownError{RetryAfter: wait}
		}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: phone,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	code, err := totp.GenerateCodeCustom(key.Secret(), now, codeOpts)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	m.challenges[phone] = &challenge{secret: key.Secret(), issuedAt: now}
	return code, nil
}

// VerifyCode checks code against the outstanding challenge. Success consumes
// the challenge.
func (m *OTPManager) VerifyCode(phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[phone]
	if !ok {
		return ErrOTPNotRequested
	}
	if c.locked {
		return ErrOTPLocked
	}
	if m.now().Sub(c.issuedAt) > m.cfg.TTL {
		delete(m.challenges, phone)
		return ErrOTPExpired
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), c.secret, c.issuedAt, codeOpts)
	if err != nil || !valid {
		c.attempts++
		if c.attempts >= m.cfg.MaxAttempts {
			c.locked = true
			return ErrOTPLocked
		}
		return ErrOTPInvalid
	}
	delete(m.challenges, phone)
	return nil
}

// Sweep drops challenges that can no longer be used or block a new request.
func (m *OTPManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keep := m.cfg.TTL
	if m.cfg.Cooldown > keep {
		keep = m.cfg.Cooldown
	}
	removed := 0
	for phone, c := range m.challenges {
		if now.Sub(c.issuedAt) > keep {
			delete(m.challenges, phone)
			removed++
		}
	}
	return removed
}

// NormalizePhone reduces a phone number to "+" and digits. Local Israeli
// numbers starting with 0 get the +972 prefix.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}
	p := b.String()
	switch {
	case strings.HasPrefix(p, "+"):
	case strings.HasPrefix(p, "00"):
		p = "+" + p[2:]
	case strings.HasPrefix(p, "0"):
		p = "+972" + p[1:]
	default:
		p = "+" + p
	}
	if n := len(p) - 1; n < 8 || n > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return p, nil
}
