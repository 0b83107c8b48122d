package payment

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/MadGotten/Eventio/internal/domain"
)

type StripeGateway struct {
	api *client.API
}

// NewStripeGateway builds a client with a bounded HTTP timeout so a slow
// gateway surfaces as a retryable error instead of hanging the request.
func NewStripeGateway(apiKey string, timeout time.Duration) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, stripe.NewBackends(&http.Client{Timeout: timeout}))
	return &StripeGateway{api: api}
}

func (g *StripeGateway) OpenSession(ctx context.Context, req SessionRequest) (Session, error) {
	successURL := req.SuccessURL
	if !strings.Contains(successURL, "?session_id=") {
		successURL += "?session_id={CHECKOUT_SESSION_ID}"
	}

	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(req.ProductName),
		Description: stripe.String(req.ProductDescription),
	}
	if req.ProductImageURL != "" {
		productData.Images = stripe.StringSlice([]string{req.ProductImageURL})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(req.Currency),
					UnitAmount:  stripe.Int64(req.UnitPriceMinor),
					ProductData: productData,
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("product_id", req.ProductName)
	params.AddMetadata("quantity", strconv.Itoa(req.Quantity))

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, errors.Mark(err, domain.ErrGateway)
	}
	if sess.URL == "" {
		return Session{}, errors.WithDetail(domain.ErrGateway, "checkout session has no redirect url")
	}

	return Session{ID: sess.ID, URL: sess.URL, Quantity: req.Quantity}, nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return Session{}, errors.Mark(err, domain.ErrGateway)
	}

	// Zero when the metadata is missing; the caller falls back to the
	// quantity recorded on the checkout attempt.
	quantity := 0
	if q, ok := sess.Metadata["quantity"]; ok {
		if n, err := strconv.Atoi(q); err == nil {
			quantity = n
		}
	}

	return Session{
		ID:        sess.ID,
		URL:       sess.URL,
		Completed: sess.Status == stripe.CheckoutSessionStatusComplete,
		Quantity:  quantity,
	}, nil
}
