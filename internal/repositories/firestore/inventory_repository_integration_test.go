//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gioia-jewelry/api/internal/domain"
	pconfig "github.com/gioia-jewelry/api/internal/platform/config"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

var errStockExhausted = errors.New("stock exhausted")

// Races concurrent single-unit checkout deductions against a finite
// stock record and asserts the counter never oversells: committed
// decrements stay within the seeded quantity and the final quantity is
// never negative.
func TestInventoryRepositoryConcurrentDeductIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	repo := reg.Inventory()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const initial = 10
	const workers = 16
	if err := repo.UpsertStock(ctx, domain.Stock{SKU: "RING-1", Quantity: initial, LowStockThreshold: 2}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	var successes int32
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			// Checkouts retry on contention aborts until they either
			// commit a decrement or observe the stock spent.
			for {
				err := reg.RunInTx(ctx, func(txCtx context.Context) error {
					stocks, err := repo.GetStocks(txCtx, []string{"RING-1"})
					if err != nil {
						return err
					}
					if len(stocks) != 1 {
						return fmt.Errorf("expected one stock record, got %d", len(stocks))
					}
					if stocks[0].Quantity < 1 {
						return errStockExhausted
					}
					return repo.SetQuantities(txCtx, []repositories.StockWrite{{
						SKU:               "RING-1",
						Quantity:          stocks[0].Quantity - 1,
						LowStockThreshold: stocks[0].LowStockThreshold,
					}})
				})
				switch {
				case err == nil:
					atomic.AddInt32(&successes, 1)
					return
				case errors.Is(err, errStockExhausted):
					return
				case ctx.Err() != nil:
					t.Errorf("deduct(%d): %v", idx, err)
					return
				default:
					time.Sleep(10 * time.Millisecond)
				}
			}
		}(i)
	}

	wg.Wait()
	if t.Failed() {
		t.FailNow()
	}

	committed := int(atomic.LoadInt32(&successes))
	if committed > initial {
		t.Fatalf("committed %d decrements against stock of %d", committed, initial)
	}

	final, err := repo.GetStock(ctx, "RING-1")
	if err != nil {
		t.Fatalf("get final stock: %v", err)
	}
	if final.Quantity < 0 {
		t.Fatalf("stock went negative: %d", final.Quantity)
	}
	if final.Quantity != initial-committed {
		t.Fatalf("expected final quantity %d, got %d", initial-committed, final.Quantity)
	}
	// With more workers than stock the counter must actually be drained.
	if final.Quantity != 0 {
		t.Fatalf("expected stock drained to zero, got %d", final.Quantity)
	}
}
