package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/infstore/storefront/internal/abandoned"
	"github.com/infstore/storefront/internal/cart"
	"github.com/infstore/storefront/internal/checkout"
	"github.com/infstore/storefront/internal/discount"
	"github.com/infstore/storefront/internal/orders"
	"github.com/infstore/storefront/internal/payment"
	"github.com/infstore/storefront/internal/redisx"
)

type CheckoutHandler struct {
	Checkout  *checkout.Service
	Orders    checkout.OrderStore
	Payments  *payment.Orchestrator
	Debouncer *abandoned.Debouncer
	Redis     *redis.Client

	sfg singleflight.Group
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/discounts/validate", h.validateDiscount)
	r.Post("/payments/intent", h.createIntent)
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/tracking", h.addTracking)
	r.Post("/orders/cancel", h.cancelOrder)
	r.Post("/abandoned-carts", h.saveAbandonedCart)
	r.Post("/abandoned-carts/send-reminders", h.sendReminders)
	r.Post("/abandoned-carts/{sessionID}/resend", h.resendReminder)
	r.Post("/newsletter/subscribe", h.subscribe)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the error taxonomy onto status codes. Discount rule
// failures keep a machine-readable code so the storefront can show
// an actionable message.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrInvalidInput), errors.Is(err, payment.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, errBody(err, "invalid_input"))
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, discount.ErrNotFound), errors.Is(err, abandoned.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err, "not_found"))
	case errors.Is(err, orders.ErrDuplicateOrderNumber):
		writeJSON(w, http.StatusConflict, errBody(err, "conflict"))
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errBody(err, "invalid_transition"))
	case errors.Is(err, checkout.ErrNotCancellable), errors.Is(err, checkout.ErrCancelWindowClosed):
		writeJSON(w, http.StatusConflict, errBody(err, "not_cancellable"))
	case errors.Is(err, discount.ErrExpired):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err, "expired"))
	case errors.Is(err, discount.ErrExhausted):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err, "exhausted"))
	case errors.Is(err, discount.ErrBelowMinimum):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err, "below_minimum"))
	case errors.Is(err, payment.ErrGatewayTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errBody(err, "gateway_timeout"))
	case errors.Is(err, payment.ErrGateway):
		writeJSON(w, http.StatusBadGateway, errBody(err, "gateway_error"))
	default:
		writeJSON(w, http.StatusInternalServerError, errBody(err, "internal"))
	}
}

func errBody(err error, code string) map[string]string {
	return map[string]string{"error": err.Error(), "code": code}
}

type validateDiscountReq struct {
	Code           string `json:"code"`
	Email          string `json:"email"`
	PurchaseAmount int64  `json:"purchase_amount"`
}

type validateDiscountResp struct {
	Valid    bool   `json:"valid"`
	Discount int64  `json:"discount,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *CheckoutHandler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	amount, err := h.Checkout.ValidateDiscount(ctx, req.Code, req.Email, req.PurchaseAmount)
	if err != nil {
		// business rule failures are a negative validation result,
		// not a transport error
		switch {
		case errors.Is(err, discount.ErrNotFound),
			errors.Is(err, discount.ErrExpired),
			errors.Is(err, discount.ErrExhausted),
			errors.Is(err, discount.ErrBelowMinimum):
			writeJSON(w, http.StatusOK, validateDiscountResp{Valid: false, Error: err.Error()})
		default:
			writeErr(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, validateDiscountResp{Valid: true, Discount: amount})
}

type createIntentReq struct {
	Amount      int64  `json:"amount"`
	OrderNumber string `json:"order_number"`
}

func (h *CheckoutHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ref, err := h.Payments.CreateIntent(r.Context(), req.Amount, req.OrderNumber)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"client_secret":     ref.ClientSecret,
		"payment_intent_id": ref.PaymentIntentID,
	})
}

func (h *CheckoutHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in checkout.PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.PlaceOrder(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

// listOrders backs the admin order screen; newest first.
func (h *CheckoutHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Orders.List(ctx, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list, "count": len(list)})
}

// getOrder serves status from cache when it can; singleflight keeps a
// cold cache from stampeding the store.
func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	v, err, _ := h.sfg.Do(id, func() (any, error) {
		o, err := h.Orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		h.cacheStatus(ctx, o)
		return o, nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	o := v.(orders.Order)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
}

func (h *CheckoutHandler) cacheStatus(ctx context.Context, o orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

type updateStatusReq struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (h *CheckoutHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.UpdateStatus(ctx, id, orders.Status(req.Status))
	if err != nil {
		writeErr(w, err)
		return
	}
	// tracking details may ride along with a status change; the status
	// is already where the caller asked, so this only fills fields
	if req.TrackingNumber != "" {
		tr := orders.Tracking{Number: req.TrackingNumber, Carrier: req.Carrier, Notes: req.Notes}
		if o, err = h.Checkout.AddTracking(ctx, id, tr); err != nil {
			writeErr(w, err)
			return
		}
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type addTrackingReq struct {
	TrackingNumber    string `json:"tracking_number"`
	Carrier           string `json:"carrier"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"` // RFC3339
	Notes             string `json:"notes,omitempty"`
}

func (h *CheckoutHandler) addTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req addTrackingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackingNumber == "" || req.Carrier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tracking_number and carrier required"})
		return
	}
	tr := orders.Tracking{Number: req.TrackingNumber, Carrier: req.Carrier, Notes: req.Notes}
	if req.EstimatedDelivery != "" {
		ts, err := time.Parse(time.RFC3339, req.EstimatedDelivery)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad estimated_delivery"})
			return
		}
		tr.EstimatedDelivery = &ts
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.AddTracking(ctx, id, tr)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type cancelOrderReq struct {
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
}

func (h *CheckoutHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNumber == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_number and email required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Checkout.CancelOrder(ctx, req.OrderNumber, req.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type saveCartReq struct {
	SessionID string      `json:"session_id"`
	Email     string      `json:"email,omitempty"`
	Name      string      `json:"name,omitempty"`
	Items     []cart.Item `json:"items"`
	CartTotal int64       `json:"cart_total"`
}

// saveAbandonedCart acks immediately; the debouncer owns the write.
func (h *CheckoutHandler) saveAbandonedCart(w http.ResponseWriter, r *http.Request) {
	var req saveCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id required"})
		return
	}
	h.Debouncer.Save(abandoned.Snapshot{
		SessionID:  req.SessionID,
		Email:      req.Email,
		Name:       req.Name,
		Items:      req.Items,
		TotalMinor: req.CartTotal,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *CheckoutHandler) sendReminders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sent, total, err := h.Checkout.SendReminders(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent_count": sent, "total_carts": total})
}

func (h *CheckoutHandler) resendReminder(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Checkout.ResendReminder(ctx, sessionID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

type subscribeReq struct {
	Email string `json:"email"`
}

func (h *CheckoutHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Checkout.SubscribeNewsletter(ctx, req.Email); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "subscribed"})
}
