package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	ViewCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*service.ItemChange, error)
	UpdateItemQuantity(ctx context.Context, userID string, itemID int64, quantity int) (*service.ItemChange, error)
	RemoveItem(ctx context.Context, userID string, itemID int64) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	// Quantity accepts a JSON number or a numeric string and defaults to 1.
	Quantity json.RawMessage `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity json.RawMessage `json:"quantity,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.ViewCart(ctx, userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, domain.KindInvalidInput.String(), "product_id must be positive")
		return
	}
	quantity, err := quantityFromJSON(req.Quantity)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	change, err := h.carts.AddItem(ctx, userID, req.ProductID, quantity)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	if change.Removed {
		respondJSON(w, http.StatusOK, MessageResponse{Message: "item removed from cart", Removed: true})
		return
	}
	respondJSON(w, http.StatusCreated, toCartItemResponse(change.Item))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	quantity, err := quantityFromJSON(req.Quantity)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	change, err := h.carts.UpdateItemQuantity(ctx, userID, itemID, quantity)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	if change.Removed {
		respondJSON(w, http.StatusOK, MessageResponse{Message: "item removed from cart", Removed: true})
		return
	}
	respondJSON(w, http.StatusOK, toCartItemResponse(change.Item))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(ctx, userID, itemID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "item removed from cart"})
}

func itemIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "item_id"), 10, 64)
	if err != nil || itemID <= 0 {
		respondError(w, http.StatusBadRequest, domain.KindInvalidInput.String(), "item_id must be a positive integer")
		return 0, false
	}
	return itemID, true
}

func quantityFromJSON(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 1, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ParseQuantity(s)
	}
	return domain.ParseQuantity(string(raw))
}
