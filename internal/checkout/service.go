// Package checkout orchestrates the trip through the payment gateway:
// open a session, wait for the buyer to pay out-of-band, then convert the
// confirmed session into a reservation and a purchase exactly once.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/MadGotten/Eventio/internal/domain"
	"github.com/MadGotten/Eventio/internal/observability"
	"github.com/MadGotten/Eventio/internal/payment"
)

// errRefundRequired carries both sentinels so callers can match either
// the settlement outcome or the underlying stock failure.
var errRefundRequired = errors.Join(domain.ErrRefundRequired, domain.ErrInsufficientStock)

// Store is the slice of the relational repository the orchestrator needs.
type Store interface {
	EventWithTicket(ctx context.Context, id uuid.UUID) (domain.Event, *domain.Ticket, error)
	CreateAttempt(ctx context.Context, a domain.CheckoutAttempt) error
	OpenAttemptSession(ctx context.Context, attemptID uuid.UUID, sessionID string) error
	AttemptBySession(ctx context.Context, sessionID string) (domain.CheckoutAttempt, error)
	PurchaseBySession(ctx context.Context, sessionID string) (*domain.Purchase, error)
	Settle(ctx context.Context, eventID, userID uuid.UUID, quantity int, sessionID string) (domain.Purchase, error)
	FailAttempt(ctx context.Context, sessionID string) error
	RecordRefundRequired(ctx context.Context, sessionID string, eventID, userID uuid.UUID, quantity int, amountMinor int64) error
}

// Reconciler records settlement outcomes for manual follow-up.
type Reconciler interface {
	RefundRequired(ctx context.Context, sessionID string, eventID, userID uuid.UUID, quantity int, amountMinor int64, reason string) error
	Settled(ctx context.Context, sessionID string, eventID, userID, purchaseID uuid.UUID, quantity int, amountMinor int64) error
}

type Service struct {
	store          Store
	gateway        payment.Gateway
	recon          Reconciler
	logger         observability.Logger
	currency       string
	publicBaseURL  string
	gatewayTimeout time.Duration
}

func NewService(store Store, gateway payment.Gateway, recon Reconciler, logger observability.Logger, currency, publicBaseURL string, gatewayTimeout time.Duration) *Service {
	return &Service{
		store:          store,
		gateway:        gateway,
		recon:          recon,
		logger:         logger,
		currency:       currency,
		publicBaseURL:  publicBaseURL,
		gatewayTimeout: gatewayTimeout,
	}
}

// Start validates the request, opens a gateway session and returns the
// redirect URL. The quantity cap against remaining stock is advisory:
// the authoritative check happens again at settlement, under the lock.
func (s *Service) Start(ctx context.Context, eventID, userID uuid.UUID, quantity int) (string, error) {
	if quantity <= 0 {
		return "", errors.WithDetail(domain.ErrInvalidInput, "quantity must be positive")
	}

	event, ticket, err := s.store.EventWithTicket(ctx, eventID)
	if err != nil {
		return "", err
	}
	if ticket == nil || !event.IsPaid() {
		return "", errors.WithDetail(domain.ErrNotFound, "event has no tickets for sale")
	}
	if !event.IsActive() {
		return "", errors.WithDetail(domain.ErrNotFound, "event is not open for sale")
	}
	if ticket.Quantity <= 0 {
		return "", domain.ErrInsufficientStock
	}
	if quantity > ticket.Quantity {
		return "", errors.WithDetail(domain.ErrInvalidInput, "quantity exceeds remaining stock")
	}

	attempt := domain.NewCheckoutAttempt(eventID, userID, quantity, ticket.PriceMinor*int64(quantity))
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return "", err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	sess, err := s.gateway.OpenSession(gwCtx, payment.SessionRequest{
		SuccessURL:         s.publicBaseURL + "/v1/checkout/success",
		CancelURL:          fmt.Sprintf("%s/v1/events/%s", s.publicBaseURL, eventID),
		UnitPriceMinor:     ticket.PriceMinor,
		Currency:           s.currency,
		Quantity:           quantity,
		ProductName:        event.Title + " - Ticket",
		ProductDescription: event.Description,
		ProductImageURL:    event.BannerURL,
	})
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"event_id": eventID, "user_id": userID,
		}).Error("failed to open checkout session", err)
		return "", err
	}

	if err := s.store.OpenAttemptSession(ctx, attempt.ID, sess.ID); err != nil {
		return "", err
	}

	s.logger.WithFields(map[string]interface{}{
		"event_id": eventID, "user_id": userID, "session_id": sess.ID, "quantity": quantity,
	}).Info("checkout session opened")

	return sess.URL, nil
}

// Settle is safe to call any number of times per session: the first
// confirmed call reserves stock and writes the purchase; every later
// call returns that same purchase untouched.
func (s *Service) Settle(ctx context.Context, sessionID string) (domain.Purchase, error) {
	if sessionID == "" {
		return domain.Purchase{}, errors.WithDetail(domain.ErrInvalidInput, "session id is required")
	}

	if existing, err := s.store.PurchaseBySession(ctx, sessionID); err != nil {
		return domain.Purchase{}, err
	} else if existing != nil {
		return *existing, nil
	}

	attempt, err := s.store.AttemptBySession(ctx, sessionID)
	if err != nil {
		return domain.Purchase{}, err
	}
	if attempt.State == domain.CheckoutFailed {
		// The refund was already recorded for this session. Reloading
		// the success page must not append another reconciliation entry.
		return domain.Purchase{}, errRefundRequired
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	sess, err := s.gateway.GetSession(gwCtx, sessionID)
	if err != nil {
		// Timeout included: retryable, the attempt stays SESSION_OPEN.
		s.logger.WithField("session_id", sessionID).Error("failed to retrieve checkout session", err)
		observability.SettlementsTotal.WithLabelValues("gateway_error").Inc()
		return domain.Purchase{}, err
	}
	if !sess.Completed {
		observability.SettlementsTotal.WithLabelValues("not_completed").Inc()
		return domain.Purchase{}, errors.WithDetail(domain.ErrGateway, "payment not completed")
	}

	quantity := sess.Quantity
	if quantity <= 0 {
		quantity = attempt.Quantity
	}

	purchase, err := s.store.Settle(ctx, attempt.EventID, attempt.UserID, quantity, sessionID)
	switch {
	case err == nil:
		// settled below

	case errors.Is(err, domain.ErrConflict):
		// Lost a race against another settlement of the same session.
		existing, lookupErr := s.store.PurchaseBySession(ctx, sessionID)
		if lookupErr != nil {
			return domain.Purchase{}, lookupErr
		}
		if existing != nil {
			return *existing, nil
		}
		return domain.Purchase{}, err

	case errors.Is(err, domain.ErrInsufficientStock):
		// The gateway took the money but stock ran out. Surface it
		// distinctly and leave an operator enough context to refund.
		observability.SettlementsTotal.WithLabelValues("refund_required").Inc()
		observability.ReservationsTotal.WithLabelValues("insufficient_stock").Inc()
		if reconErr := s.recon.RefundRequired(ctx, sessionID, attempt.EventID, attempt.UserID, quantity, attempt.AmountMinor, "insufficient stock at settlement"); reconErr != nil {
			s.logger.WithField("session_id", sessionID).Error("failed to record refund reconciliation", reconErr)
		}
		if outboxErr := s.store.RecordRefundRequired(ctx, sessionID, attempt.EventID, attempt.UserID, quantity, attempt.AmountMinor); outboxErr != nil {
			s.logger.WithField("session_id", sessionID).Error("failed to queue refund notification", outboxErr)
		}
		if failErr := s.store.FailAttempt(ctx, sessionID); failErr != nil {
			s.logger.WithField("session_id", sessionID).Error("failed to mark attempt failed", failErr)
		}
		return domain.Purchase{}, errRefundRequired

	default:
		observability.SettlementsTotal.WithLabelValues("error").Inc()
		return domain.Purchase{}, err
	}

	observability.SettlementsTotal.WithLabelValues("settled").Inc()
	observability.ReservationsTotal.WithLabelValues("reserved").Inc()

	if reconErr := s.recon.Settled(ctx, sessionID, attempt.EventID, attempt.UserID, purchase.ID, purchase.Quantity, purchase.AmountPaid); reconErr != nil {
		s.logger.WithField("session_id", sessionID).Error("failed to record settlement audit", reconErr)
	}

	s.logger.WithFields(map[string]interface{}{
		"session_id": sessionID, "purchase_id": purchase.ID, "amount_paid": purchase.AmountPaid,
	}).Info("checkout settled")

	return purchase, nil
}
