package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Email       string     `firestore:"email"`
	DisplayName string     `firestore:"displayName,omitempty"`
	Role        string     `firestore:"role"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	LastLoginAt *time.Time `firestore:"lastLoginAt,omitempty"`
}

// UserRepository resolves customer accounts for the OTP login flow.
// Document IDs are derived from the normalised email so lookups stay
// a single point read.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindByEmail loads the account registered for the email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	id, err := userDocumentID(email)
	if err != nil {
		return domain.User{}, err
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return userFromDocument(doc.ID, doc.Data), nil
}

// EnsureByEmail returns the account for the email, creating it on
// first login.
func (r *UserRepository) EnsureByEmail(ctx context.Context, email string, now time.Time) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	id, err := userDocumentID(email)
	if err != nil {
		return domain.User{}, err
	}

	existing, err := r.base.Get(ctx, id)
	if err == nil {
		return userFromDocument(existing.ID, existing.Data), nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return domain.User{}, err
	}

	doc := userDocument{
		Email:     normaliseEmail(email),
		Role:      "customer",
		CreatedAt: now.UTC(),
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		wrapped := pfirestore.WrapError("users.create", err)
		if errors.As(wrapped, &repoErr) && repoErr.IsConflict() {
			// Lost a race with a concurrent first login.
			return r.FindByEmail(ctx, email)
		}
		return domain.User{}, wrapped
	}
	return userFromDocument(id, doc), nil
}

// RecordLogin stamps the last successful login.
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(userID), []firestore.Update{
		{Path: "lastLoginAt", Value: at.UTC()},
	})
	return err
}

func userDocumentID(email string) (string, error) {
	normalised := normaliseEmail(email)
	if normalised == "" {
		return "", errors.New("user repository: email is required")
	}
	sum := sha256.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:16]), nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userFromDocument(id string, doc userDocument) domain.User {
	return domain.User{
		ID:          id,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Role:        doc.Role,
		CreatedAt:   doc.CreatedAt,
		LastLoginAt: doc.LastLoginAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
