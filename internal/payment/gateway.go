// Package payment wraps the external card-payment processor. The rest of
// the application sees only the Gateway interface; the money actually
// moves on the processor's own pages, out-of-band.
package payment

import "context"

type SessionRequest struct {
	SuccessURL         string
	CancelURL          string
	UnitPriceMinor     int64
	Currency           string
	Quantity           int
	ProductName        string
	ProductDescription string
	ProductImageURL    string
}

type Session struct {
	ID        string
	URL       string
	Completed bool
	Quantity  int
}

type Gateway interface {
	OpenSession(ctx context.Context, req SessionRequest) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}
