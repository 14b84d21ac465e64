package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const paymentAttemptCollection = "payment_attempts"

type paymentAttemptDocument struct {
	OrderID   string    `firestore:"orderId"`
	Provider  string    `firestore:"provider"`
	TxnRef    string    `firestore:"txnRef"`
	Amount    int64     `firestore:"amount"`
	BankCode  string    `firestore:"bankCode,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// PaymentRepository records gateway redirect attempts, keyed by the
// per-request transaction reference so callbacks can be correlated.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentAttemptDocument]
	provider *pfirestore.Provider
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentAttemptDocument](provider, paymentAttemptCollection, nil, nil)
	return &PaymentRepository{
		base:     base,
		provider: provider,
	}, nil
}

// InsertAttempt records one redirect attempt. The transaction
// reference doubles as the document ID, which also rejects duplicate
// references.
func (r *PaymentRepository) InsertAttempt(ctx context.Context, attempt domain.PaymentAttempt) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	ref := strings.TrimSpace(attempt.TxnRef)
	if ref == "" {
		return errors.New("payment repository: txn ref is required")
	}
	docRef, err := r.base.DocumentRef(ctx, ref)
	if err != nil {
		return err
	}
	doc := paymentAttemptDocument{
		OrderID:   strings.TrimSpace(attempt.OrderID),
		Provider:  strings.TrimSpace(attempt.Provider),
		TxnRef:    ref,
		Amount:    attempt.Amount,
		BankCode:  strings.TrimSpace(attempt.BankCode),
		CreatedAt: attempt.CreatedAt.UTC(),
		ExpiresAt: attempt.ExpiresAt.UTC(),
	}
	_, err = docRef.Create(ctx, doc)
	return pfirestore.WrapError("payment_attempts.insert", err)
}

// FindAttemptByTxnRef resolves an attempt from a callback reference.
func (r *PaymentRepository) FindAttemptByTxnRef(ctx context.Context, txnRef string) (domain.PaymentAttempt, error) {
	if r == nil || r.base == nil {
		return domain.PaymentAttempt{}, errors.New("payment repository not initialised")
	}
	ref := strings.TrimSpace(txnRef)
	if ref == "" {
		return domain.PaymentAttempt{}, pfirestore.WrapError("payment_attempts.get", status.Error(codes.NotFound, "txn ref is required"))
	}
	doc, err := r.base.Get(ctx, ref)
	if err != nil {
		return domain.PaymentAttempt{}, err
	}
	return attemptFromDocument(doc.ID, doc.Data), nil
}

// ListAttemptsByOrder returns all attempts for one order, oldest first.
func (r *PaymentRepository) ListAttemptsByOrder(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, fmt.Errorf("payment repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.Collection(paymentAttemptCollection).
		Where("orderId", "==", id).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var attempts []domain.PaymentAttempt
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("payment_attempts.list", err)
		}
		var doc paymentAttemptDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("payment_attempts.decode", err)
		}
		attempts = append(attempts, attemptFromDocument(snap.Ref.ID, doc))
	}
	return attempts, nil
}

func attemptFromDocument(id string, doc paymentAttemptDocument) domain.PaymentAttempt {
	txnRef := doc.TxnRef
	if strings.TrimSpace(txnRef) == "" {
		txnRef = id
	}
	return domain.PaymentAttempt{
		ID:        id,
		OrderID:   doc.OrderID,
		Provider:  doc.Provider,
		TxnRef:    txnRef,
		Amount:    doc.Amount,
		BankCode:  doc.BankCode,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
