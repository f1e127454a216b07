package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
	"github.com/sijan324/nepshop/internal/service"
)

const (
	// AccountHeader carries the authenticated account id set by the gateway.
	AccountHeader = "X-Account-ID"
	// SessionCookie carries the anonymous session id.
	SessionCookie = "cart_session"

	sessionMaxAge = 30 * 24 * time.Hour
)

// Handler handles HTTP requests for the cart API.
type Handler struct {
	cartSvc *service.CartService
	health  repository.Pinger
}

func NewHandler(cartSvc *service.CartService, health repository.Pinger) *Handler {
	return &Handler{
		cartSvc: cartSvc,
		health:  health,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart", h.handleGetCart)
	mux.HandleFunc("POST /api/cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /api/cart/items/{id}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /api/cart", h.handleClearCart)
	mux.HandleFunc("POST /api/cart/merge", h.handleMerge)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// NewRouter wires the routes behind the session and CORS middleware.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	corsMW := cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", AccountHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return corsMW(WithIdentity(mux))
}

type identityKey struct{}

// WithIdentity reads the caller's account and session and issues a session
// cookie when the request has none.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := service.Identity{AccountID: r.Header.Get(AccountHeader)}

		if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
			id.SessionID = c.Value
		} else {
			id.SessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id.SessionID,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) service.Identity {
	id, _ := r.Context().Value(identityKey{}).(service.Identity)
	return id
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cartSvc.GetCart(r.Context(), identityFrom(r))
	if err != nil {
		writeError(w, "get cart", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

type AddItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  *int   `json:"quantity,omitempty"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeMessage(w, http.StatusBadRequest, "productId is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	cart, err := h.cartSvc.AddToCart(r.Context(), identityFrom(r), req.ProductID, req.VariantID, qty)
	if err != nil {
		writeError(w, "add to cart", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

type UpdateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil {
		writeMessage(w, http.StatusBadRequest, "quantity is required")
		return
	}

	cart, err := h.cartSvc.UpdateCartItem(r.Context(), identityFrom(r), r.PathValue("id"), *req.Quantity)
	if err != nil {
		writeError(w, "update cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cartSvc.RemoveFromCart(r.Context(), identityFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, "remove cart item", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cartSvc.ClearCart(r.Context(), identityFrom(r)); err != nil {
		writeError(w, "clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.AccountID == "" {
		writeMessage(w, http.StatusBadRequest, AccountHeader+" header is required")
		return
	}

	if err := h.cartSvc.MergeCarts(r.Context(), id.SessionID, id.AccountID); err != nil {
		writeError(w, "merge carts", err)
		return
	}

	cart, err := h.cartSvc.GetCart(r.Context(), service.Identity{AccountID: id.AccountID})
	if err != nil {
		writeError(w, "get cart", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			slog.Warn("Health check failed", "err", err)
			writeMessage(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type CartItemResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	VariantID    string `json:"variantId,omitempty"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	Total        string `json:"total"`
}

type CartResponse struct {
	ID        string             `json:"id"`
	AccountID string             `json:"accountId,omitempty"`
	SessionID string             `json:"sessionId,omitempty"`
	Items     []CartItemResponse `json:"items"`
	ItemCount int                `json:"itemCount"`
	Total     string             `json:"total"`
}

func toCartResponse(c entity.RenderedCart) CartResponse {
	resp := CartResponse{
		ID:        c.CartID,
		AccountID: c.AccountID,
		SessionID: c.SessionID,
		Items:     make([]CartItemResponse, 0, len(c.Lines)),
		ItemCount: c.ItemCount,
		Total:     c.Total.StringFixed(2),
	}
	for _, l := range c.Lines {
		resp.Items = append(resp.Items, CartItemResponse{
			ID:           l.LineID,
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			ProductName:  l.ProductName,
			ProductImage: l.ProductImage,
			Quantity:     l.Quantity,
			Price:        l.UnitPrice.StringFixed(2),
			Total:        l.LineTotal.StringFixed(2),
		})
	}
	return resp
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrMissingIdentity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Failed to "+op, "err", err)
		writeMessage(w, status, http.StatusText(status))
		return
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}
