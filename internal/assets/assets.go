// Package assets stores event banner images in an external bucket.
package assets

import (
	"context"
	"io"
)

type Asset struct {
	PublicID string
	URL      string
}

type Store interface {
	Upload(ctx context.Context, r io.Reader) (Asset, error)
	Delete(ctx context.Context, publicID string) error
}
