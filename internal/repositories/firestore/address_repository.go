package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const addressCollection = "addresses"

type addressDocument struct {
	UserID    string    `firestore:"userId"`
	Recipient string    `firestore:"recipient"`
	Phone     string    `firestore:"phone"`
	Line1     string    `firestore:"line1"`
	Line2     string    `firestore:"line2,omitempty"`
	Ward      string    `firestore:"ward,omitempty"`
	District  string    `firestore:"district,omitempty"`
	City      string    `firestore:"city"`
	IsDefault bool      `firestore:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// AddressRepository stores customer shipping addresses. Ownership is
// enforced by matching the stored userId, so a document fetched with
// a foreign user ID behaves like a missing document at the service
// layer.
type AddressRepository struct {
	base     *pfirestore.BaseRepository[addressDocument]
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[addressDocument](provider, addressCollection, nil, nil)
	return &AddressRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Get loads one address. The caller's user ID is required; ownership
// checks happen at the service layer, which needs to distinguish a
// missing address from a foreign one.
func (r *AddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if r == nil || r.base == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Address{}, errors.New("address repository: user id is required")
	}

	doc, err := r.base.Get(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return domain.Address{}, err
	}
	return addressFromDocument(doc.ID, doc.Data), nil
}

// List returns all addresses owned by the user, default first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(addressCollection).
		Where("userId", "==", uid).
		OrderBy("isDefault", firestore.Desc).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var addresses []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("addresses.decode", err)
		}
		addresses = append(addresses, addressFromDocument(snap.Ref.ID, doc))
	}
	return addresses, nil
}

// Upsert writes the address document.
func (r *AddressRepository) Upsert(ctx context.Context, address domain.Address) (domain.Address, error) {
	if r == nil || r.base == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	id := strings.TrimSpace(address.ID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	if strings.TrimSpace(address.UserID) == "" {
		return domain.Address{}, errors.New("address repository: user id is required")
	}

	now := time.Now().UTC()
	createdAt := address.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := addressDocument{
		UserID:    strings.TrimSpace(address.UserID),
		Recipient: strings.TrimSpace(address.Recipient),
		Phone:     strings.TrimSpace(address.Phone),
		Line1:     strings.TrimSpace(address.Line1),
		Line2:     strings.TrimSpace(address.Line2),
		Ward:      strings.TrimSpace(address.Ward),
		District:  strings.TrimSpace(address.District),
		City:      strings.TrimSpace(address.City),
		IsDefault: address.IsDefault,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Address{}, err
	}
	return addressFromDocument(id, doc), nil
}

// Delete removes the address when it belongs to the user.
func (r *AddressRepository) Delete(ctx context.Context, userID, addressID string) error {
	if r == nil || r.base == nil {
		return errors.New("address repository not initialised")
	}
	existing, err := r.Get(ctx, userID, addressID)
	if err != nil {
		return err
	}
	if existing.UserID != strings.TrimSpace(userID) {
		return errors.New("address repository: address not owned by user")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("addresses.delete", err)
}

func addressFromDocument(id string, doc addressDocument) domain.Address {
	return domain.Address{
		ID:        id,
		UserID:    doc.UserID,
		Recipient: doc.Recipient,
		Phone:     doc.Phone,
		Line1:     doc.Line1,
		Line2:     doc.Line2,
		Ward:      doc.Ward,
		District:  doc.District,
		City:      doc.City,
		IsDefault: doc.IsDefault,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
