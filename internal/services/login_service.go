package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/repositories"
)

var (
	// ErrLoginInvalidEmail signals a missing or malformed email address.
	ErrLoginInvalidEmail = errors.New("login: invalid email")
	// ErrLoginInvalidCode indicates the OTP did not verify.
	ErrLoginInvalidCode = errors.New("login: invalid code")
	// ErrLoginCodeExpired indicates the OTP validity window has closed.
	ErrLoginCodeExpired = errors.New("login: code expired")
)

// otpCache is the slice of auth.OTPStore the login flow needs.
type otpCache interface {
	Issue(email string) (string, time.Time, error)
	Verify(email, code string) error
}

// sessionIssuer signs session tokens for verified identities.
type sessionIssuer interface {
	Issue(identity auth.Identity) (string, time.Time, error)
}

// OTPSender delivers a one-time code to the customer. Production
// wiring sends email; development wiring logs the code.
type OTPSender func(ctx context.Context, email, code string, expiresAt time.Time) error

// loginService implements passwordless email login. A verified OTP
// resolves or creates the customer account and mints a session token.
type loginService struct {
	users    repositories.UserRepository
	otp      otpCache
	sessions sessionIssuer
	sender   OTPSender
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// LoginServiceDeps wires the login service dependencies.
type LoginServiceDeps struct {
	Users    repositories.UserRepository
	OTP      otpCache
	Sessions sessionIssuer
	Sender   OTPSender
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// NewLoginService validates dependencies and constructs the service.
func NewLoginService(deps LoginServiceDeps) (LoginService, error) {
	if deps.Users == nil {
		return nil, errors.New("login service: user repository is required")
	}
	if deps.OTP == nil {
		return nil, errors.New("login service: otp cache is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("login service: session issuer is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("login service: otp sender is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &loginService{
		users:    deps.Users,
		otp:      deps.OTP,
		sessions: deps.Sessions,
		sender:   deps.Sender,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// RequestOTP issues a fresh code for the email and hands it to the
// sender. Reissuing replaces any earlier unexpired code.
func (s *loginService) RequestOTP(ctx context.Context, email string) error {
	normalised, err := normaliseLoginEmail(email)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.otp.Issue(normalised)
	if err != nil {
		return fmt.Errorf("login: issue otp: %w", err)
	}
	if err := s.sender(ctx, normalised, code, expiresAt); err != nil {
		return fmt.Errorf("login: send otp: %w", err)
	}
	s.logger(ctx, "otp_requested", map[string]any{"email": normalised})
	return nil
}

// VerifyOTP consumes the code, resolving the customer account on first
// login, and returns a signed session.
func (s *loginService) VerifyOTP(ctx context.Context, email, code string) (Session, error) {
	normalised, err := normaliseLoginEmail(email)
	if err != nil {
		return Session{}, err
	}

	if err := s.otp.Verify(normalised, code); err != nil {
		switch {
		case errors.Is(err, auth.ErrOTPExpired):
			return Session{}, ErrLoginCodeExpired
		case errors.Is(err, auth.ErrOTPNotFound), errors.Is(err, auth.ErrOTPMismatch), errors.Is(err, auth.ErrOTPAttemptsExceeded):
			return Session{}, ErrLoginInvalidCode
		default:
			return Session{}, err
		}
	}

	now := s.clock()
	user, err := s.users.EnsureByEmail(ctx, normalised, now)
	if err != nil {
		return Session{}, fmt.Errorf("login: resolve user: %w", err)
	}
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger(ctx, "login_record_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
	}

	token, expiresAt, err := s.sessions.Issue(auth.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return Session{}, fmt.Errorf("login: issue session: %w", err)
	}

	s.logger(ctx, "login_succeeded", map[string]any{"user_id": user.ID})
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func normaliseLoginEmail(email string) (string, error) {
	normalised := strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(normalised, '@')
	if at <= 0 || at == len(normalised)-1 || strings.ContainsAny(normalised, " \t") {
		return "", ErrLoginInvalidEmail
	}
	return normalised, nil
}
