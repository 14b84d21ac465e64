package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gioia-jewelry/api/internal/platform/httpx"
	"github.com/gioia-jewelry/api/internal/services"
)

const maxInternalBodySize = 64 * 1024

// InternalHandlers serves machine-to-machine endpoints. The router
// mounts them behind HMAC request signing, so no session is required.
type InternalHandlers struct {
	inventory services.InventoryService
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(inventory services.InventoryService) *InternalHandlers {
	return &InternalHandlers{inventory: inventory}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/inventory/restock", h.restock)
}

// restock applies a supplier delivery to the stock counters.
func (h *InternalHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Lines []struct {
			SKU      string `json:"sku"`
			Quantity int    `json:"quantity"`
		} `json:"lines"`
	}
	if err := decodeJSONBody(r, maxInternalBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if len(req.Lines) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one line is required", http.StatusBadRequest))
		return
	}

	lines := make([]services.InventoryLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.InventoryLine{
			SKU:      strings.TrimSpace(line.SKU),
			Quantity: line.Quantity,
		})
	}

	if err := h.inventory.Restock(ctx, lines); err != nil {
		switch {
		case errors.Is(err, services.ErrInventoryInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrInventoryStockNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", err.Error(), http.StatusNotFound))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "restock failed", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "restocked",
		"lines":  len(lines),
	})
}
