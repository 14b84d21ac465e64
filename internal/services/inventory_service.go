package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gioia-jewelry/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals malformed deduction or restock lines.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates at least one SKU cannot cover the requested quantity.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryStockNotFound indicates a SKU has no stock record.
	ErrInventoryStockNotFound = errors.New("inventory: stock not found")
)

// InsufficientStockError names the SKU that could not be deducted so
// callers can report which product ran out.
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// Unwrap ties the typed error to the sentinel.
func (e *InsufficientStockError) Unwrap() error { return ErrInventoryInsufficientStock }

// inventoryService owns per-SKU stock counters. Quantity is never
// observed negative: deductions validate against the quantities read
// in the same transaction, and the transaction's read set guards the
// check at commit time.
type inventoryService struct {
	inventory  repositories.InventoryRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// InventoryServiceDeps wires the inventory service dependencies.
// UnitOfWork scopes the read and write of a mutation to one
// transaction; when a caller already runs inside one, the mutation
// joins it.
type InventoryServiceDeps struct {
	Inventory  repositories.InventoryRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// NewInventoryService validates dependencies and constructs the service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{
		inventory:  deps.Inventory,
		unitOfWork: uow,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Deduct subtracts the requested quantities, failing with an
// InsufficientStockError naming the first SKU that cannot cover its
// line. The read and write share one unit of work; when the caller
// already runs inside a transaction (checkout does) the deduction
// joins it, so the whole checkout commits or aborts together.
func (s *inventoryService) Deduct(ctx context.Context, lines []InventoryLine) ([]Stock, error) {
	normalised, err := normaliseInventoryLines(lines)
	if err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(normalised))
	for _, line := range normalised {
		skus = append(skus, line.SKU)
	}

	var updated []Stock
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		stocks, err := s.inventory.GetStocks(txCtx, skus)
		if err != nil {
			return s.translateError(err)
		}

		bySKU := make(map[string]Stock, len(stocks))
		for _, stock := range stocks {
			bySKU[stock.SKU] = stock
		}

		writes := make([]repositories.StockWrite, 0, len(normalised))
		updated = updated[:0]
		for _, line := range normalised {
			stock, ok := bySKU[line.SKU]
			if !ok {
				return fmt.Errorf("%w: %s", ErrInventoryStockNotFound, line.SKU)
			}
			if stock.Quantity < line.Quantity {
				return &InsufficientStockError{
					SKU:       line.SKU,
					Requested: line.Quantity,
					Available: stock.Quantity,
				}
			}
			stock.Quantity -= line.Quantity
			writes = append(writes, repositories.StockWrite{
				SKU:               stock.SKU,
				Quantity:          stock.Quantity,
				LowStockThreshold: stock.LowStockThreshold,
			})
			updated = append(updated, stock)
		}

		if err := s.inventory.SetQuantities(txCtx, writes); err != nil {
			return s.translateError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx, "inventory_deducted", map[string]any{"lines": len(updated)})
	return updated, nil
}

// Restock returns the given quantities to stock. Used as the
// compensating action of order cancellation and by bulk restocks from
// the internal surface. The read and write share one unit of work, so
// a deduction committing concurrently is never overwritten; inside a
// cancellation transaction the restock joins it and happens exactly
// once per cancellation.
func (s *inventoryService) Restock(ctx context.Context, lines []InventoryLine) error {
	normalised, err := normaliseInventoryLines(lines)
	if err != nil {
		return err
	}

	skus := make([]string, 0, len(normalised))
	for _, line := range normalised {
		skus = append(skus, line.SKU)
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		stocks, err := s.inventory.GetStocks(txCtx, skus)
		if err != nil {
			return s.translateError(err)
		}

		bySKU := make(map[string]Stock, len(stocks))
		for _, stock := range stocks {
			bySKU[stock.SKU] = stock
		}

		writes := make([]repositories.StockWrite, 0, len(normalised))
		for _, line := range normalised {
			stock, ok := bySKU[line.SKU]
			if !ok {
				return fmt.Errorf("%w: %s", ErrInventoryStockNotFound, line.SKU)
			}
			writes = append(writes, repositories.StockWrite{
				SKU:               stock.SKU,
				Quantity:          stock.Quantity + line.Quantity,
				LowStockThreshold: stock.LowStockThreshold,
			})
		}

		if err := s.inventory.SetQuantities(txCtx, writes); err != nil {
			return s.translateError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "inventory_restocked", map[string]any{"lines": len(normalised)})
	return nil
}

// GetStock loads one SKU's stock record.
func (s *inventoryService) GetStock(ctx context.Context, sku string) (Stock, error) {
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return Stock{}, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	stock, err := s.inventory.GetStock(ctx, trimmed)
	if err != nil {
		return Stock{}, s.translateError(err)
	}
	return stock, nil
}

// ListLowStock pages through stock records at or below threshold.
func (s *inventoryService) ListLowStock(ctx context.Context, query LowStockQuery) (LowStockPage, error) {
	page, err := s.inventory.ListLowStock(ctx, repositories.InventoryLowStockQuery{
		Limit:     query.Limit,
		PageToken: query.PageToken,
	})
	if err != nil {
		return LowStockPage{}, s.translateError(err)
	}
	return LowStockPage{Stocks: page.Stocks, NextPageToken: page.NextPageToken}, nil
}

// normaliseInventoryLines aggregates duplicate SKUs and sorts lines so
// every transaction touches stock documents in the same order.
func normaliseInventoryLines(lines []InventoryLine) ([]InventoryLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInventoryInvalidInput)
	}
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, sku)
		}
		totals[sku] += line.Quantity
	}
	out := make([]InventoryLine, 0, len(totals))
	for sku, qty := range totals {
		out = append(out, InventoryLine{SKU: sku, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *inventoryService) translateError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryStockNotFound, invErr.SKU)
		case repositories.InventoryErrorInsufficientStock, repositories.InventoryErrorNegativeQuantity:
			return &InsufficientStockError{SKU: invErr.SKU}
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrInventoryStockNotFound
	}
	return err
}
