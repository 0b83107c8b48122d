package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MadGotten/Eventio/internal/domain"
	"github.com/MadGotten/Eventio/internal/events"
	"github.com/MadGotten/Eventio/internal/idempotency"
	"github.com/MadGotten/Eventio/internal/observability"
)

// CheckoutService is the orchestrator surface the handlers call.
type CheckoutService interface {
	Start(ctx context.Context, eventID, userID uuid.UUID, quantity int) (string, error)
	Settle(ctx context.Context, sessionID string) (domain.Purchase, error)
}

// EventService is the lifecycle surface.
type EventService interface {
	Create(ctx context.Context, in events.CreateInput) (domain.Event, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Event, error)
	GetWithTicket(ctx context.Context, id uuid.UUID) (domain.Event, *domain.Ticket, error)
	List(ctx context.Context, status, eventType, sort string, limit int) ([]domain.Event, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, in events.UpdateInput) (domain.Event, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	SetBanner(ctx context.Context, id, ownerID uuid.UUID, banner io.Reader) (domain.Event, error)
	ToggleRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	Attendance(ctx context.Context, eventID, userID uuid.UUID) (registered, purchased bool, err error)
}

// PurchaseStore reads receipts, scoped to their buyer.
type PurchaseStore interface {
	GetPurchase(ctx context.Context, id, userID uuid.UUID) (domain.Purchase, error)
}

type Handlers struct {
	checkout  CheckoutService
	events    EventService
	purchases PurchaseStore
	idemp     *idempotency.Idempotency
	logger    observability.Logger
}

func NewHandlers(checkout CheckoutService, eventSvc EventService, purchases PurchaseStore, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		checkout:  checkout,
		events:    eventSvc,
		purchases: purchases,
		idemp:     idemp,
		logger:    logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRefundRequired):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "tickets sold out before your payment settled; a refund will be issued",
		})
	case errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "tickets are sold out"})
	case errors.Is(err, domain.ErrInvalidInput):
		msg := "invalid input"
		if details := errors.GetAllDetails(err); len(details) > 0 {
			msg = details[0]
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrGateway):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "there was an error processing your payment, please try again",
		})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict, try again"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// userID reads the buyer identity the auth layer in front of us injects.
func userID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	return id, err == nil
}

func urlUUID(r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	return id, err == nil
}

type eventResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	BannerURL   string    `json:"banner_url,omitempty"`
	Type        string    `json:"event_type"`
	Status      string    `json:"status"`
	Price       string    `json:"price,omitempty"`
	Remaining   *int      `json:"remaining,omitempty"`
	Registered  *bool     `json:"registered,omitempty"`
	Purchased   *bool     `json:"purchased,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toEventResponse(e domain.Event, t *domain.Ticket) eventResponse {
	resp := eventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Date:        e.Date,
		Category:    e.Category,
		BannerURL:   e.BannerURL,
		Type:        string(e.Type),
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
	}
	if t != nil {
		resp.Price = domain.FormatMinor(t.PriceMinor)
		remaining := t.Quantity
		resp.Remaining = &remaining
	}
	return resp
}

type purchaseResponse struct {
	ID          uuid.UUID `json:"id"`
	EventName   string    `json:"event_name"`
	Quantity    int       `json:"quantity"`
	AmountPaid  int64     `json:"amount_paid"`
	Total       string    `json:"total"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func toPurchaseResponse(p domain.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:          p.ID,
		EventName:   p.EventName,
		Quantity:    p.Quantity,
		AmountPaid:  p.AmountPaid,
		Total:       p.Total(),
		PurchasedAt: p.PurchasedAt,
	}
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}

	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		Date        time.Time `json:"date"`
		Category    string    `json:"category"`
		Type        string    `json:"event_type"`
		PriceMinor  int64     `json:"price_minor"`
		Quantity    int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	event, err := h.events.Create(r.Context(), events.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date,
		Category:    req.Category,
		Type:        domain.EventType(req.Type),
		PriceMinor:  req.PriceMinor,
		Quantity:    req.Quantity,
		CreatedBy:   uid,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventResponse(event, nil))
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	event, ticket, err := h.events.GetWithTicket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toEventResponse(event, ticket)
	if uid, ok := userID(r); ok {
		registered, purchased, err := h.events.Attendance(r.Context(), id, uid)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Registered = &registered
		resp.Purchased = &purchased
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		status = string(domain.StatusApproved)
	}

	list, err := h.events.List(r.Context(), status, q.Get("event_type"), q.Get("sort"), 50)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]eventResponse, 0, len(list))
	for _, e := range list {
		resp = append(resp, toEventResponse(e, nil))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		Date        time.Time `json:"date"`
		Category    string    `json:"category"`
		Type        string    `json:"event_type"`
		PriceMinor  int64     `json:"price_minor"`
		Quantity    int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	event, err := h.events.Update(r.Context(), id, uid, events.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date,
		Category:    req.Category,
		Type:        domain.EventType(req.Type),
		PriceMinor:  req.PriceMinor,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event, nil))
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	if err := h.events.Delete(r.Context(), id, uid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UploadBanner(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	file, _, err := r.FormFile("banner")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "banner file is required"})
		return
	}
	defer file.Close()

	event, err := h.events.SetBanner(r.Context(), id, uid, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event, nil))
}

func (h *Handlers) ToggleRegistration(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	registered, err := h.events.ToggleRegistration(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

// StartCheckout opens a gateway session and hands back the redirect URL.
// Replays with the same Idempotency-Key get the stored response instead
// of a second session.
func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err != nil {
		writeError(w, err)
		return
	} else if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	url, err := h.checkout.Start(r.Context(), id, uid, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]string{"checkout_url": url})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
		h.logger.Warn("failed to store idempotent response", err)
	}
}

// CheckoutSuccess is the gateway's success redirect target. Reloading the
// page settles nothing twice; the buyer just sees their purchase again.
func (h *Handlers) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	purchase, err := h.checkout.Settle(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handlers) GetPurchase(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid X-User-ID"})
		return
	}
	id, ok := urlUUID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid purchase id"})
		return
	}

	purchase, err := h.purchases.GetPurchase(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
