package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const (
	defaultOTPTTL      = 5 * time.Minute
	defaultOTPAttempts = 5
	otpDigits          = 6
)

var (
	// ErrOTPNotFound indicates no active code exists for the email.
	ErrOTPNotFound = errors.New("auth: otp not found")
	// ErrOTPExpired indicates the code's validity window has closed.
	ErrOTPExpired = errors.New("auth: otp expired")
	// ErrOTPMismatch indicates the supplied code does not match.
	ErrOTPMismatch = errors.New("auth: otp mismatch")
	// ErrOTPAttemptsExceeded indicates too many wrong guesses; the code
	// is invalidated.
	ErrOTPAttemptsExceeded = errors.New("auth: otp attempts exceeded")
)

type otpEntry struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// OTPStore holds one-time login codes in memory, keyed by normalised
// email. A code is single use: verification removes it whether it
// matched or not once the attempt budget is spent.
type OTPStore struct {
	mu          sync.Mutex
	entries     map[string]otpEntry
	ttl         time.Duration
	maxAttempts int
	clock       func() time.Time
}

// OTPOption customises OTPStore behaviour.
type OTPOption func(*OTPStore)

// WithOTPTTL overrides the default code lifetime.
func WithOTPTTL(d time.Duration) OTPOption {
	return func(s *OTPStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithOTPClock injects a custom clock, primarily for tests.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *OTPStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOTPMaxAttempts overrides the wrong-guess budget per code.
func WithOTPMaxAttempts(n int) OTPOption {
	return func(s *OTPStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewOTPStore constructs the store.
func NewOTPStore(opts ...OTPOption) *OTPStore {
	s := &OTPStore{
		entries:     make(map[string]otpEntry),
		ttl:         defaultOTPTTL,
		maxAttempts: defaultOTPAttempts,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Issue generates a fresh code for the email, replacing any previous
// one, and returns it with its expiry.
func (s *OTPStore) Issue(email string) (string, time.Time, error) {
	key := normaliseEmail(email)
	if key == "" {
		return "", time.Time{}, errors.New("auth: email is required")
	}
	code, err := generateOTPCode()
	if err != nil {
		return "", time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	s.evictExpired(now)
	expiresAt := now.Add(s.ttl)
	s.entries[key] = otpEntry{code: code, expiresAt: expiresAt}
	return code, expiresAt, nil
}

// Verify checks the code for the email. Success consumes the code; a
// wrong guess burns one attempt and exhausting the budget invalidates
// the code entirely.
func (s *OTPStore) Verify(email, code string) error {
	key := normaliseEmail(email)
	trimmed := strings.TrimSpace(code)
	if key == "" || trimmed == "" {
		return ErrOTPMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return ErrOTPNotFound
	}

	now := s.clock().UTC()
	if now.After(entry.expiresAt) {
		delete(s.entries, key)
		return ErrOTPExpired
	}

	if entry.code != trimmed {
		entry.attempts++
		if entry.attempts >= s.maxAttempts {
			delete(s.entries, key)
			return ErrOTPAttemptsExceeded
		}
		s.entries[key] = entry
		return ErrOTPMismatch
	}

	delete(s.entries, key)
	return nil
}

func (s *OTPStore) evictExpired(now time.Time) {
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("auth: generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
