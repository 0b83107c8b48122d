// Package events owns the event lifecycle: creation, updates, deletion
// and the free-event registration toggle.
package events

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/MadGotten/Eventio/internal/assets"
	"github.com/MadGotten/Eventio/internal/domain"
	"github.com/MadGotten/Eventio/internal/observability"
)

const cacheTTL = 5 * time.Minute

type Store interface {
	CreateEvent(ctx context.Context, event domain.Event, ticket *domain.Ticket) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	EventWithTicket(ctx context.Context, id uuid.UUID) (domain.Event, *domain.Ticket, error)
	ListEvents(ctx context.Context, status, eventType, sort string, limit int) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, event domain.Event, ticket *domain.Ticket) error
	DeleteEvent(ctx context.Context, id, ownerID uuid.UUID) (domain.Event, error)
	ToggleRegistration(ctx context.Context, reg domain.Registration) (bool, error)
	IsRegistered(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
	HasPurchased(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

type Cache interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	SetEvent(ctx context.Context, event domain.Event, ttl time.Duration) error
	InvalidateEvent(ctx context.Context, id uuid.UUID) error
}

// DeleteHook runs after a delete transaction has committed. The service
// invokes them explicitly, in registration order; failures are logged,
// never propagated, since the delete itself already took.
type DeleteHook func(ctx context.Context, event domain.Event) error

type Service struct {
	store       Store
	cache       Cache
	assets      assets.Store
	logger      observability.Logger
	deleteHooks []DeleteHook
}

func NewService(store Store, cache Cache, assetStore assets.Store, logger observability.Logger) *Service {
	return &Service{store: store, cache: cache, assets: assetStore, logger: logger}
}

// OnDelete registers a post-commit callback for event deletion.
func (s *Service) OnDelete(hook DeleteHook) {
	s.deleteHooks = append(s.deleteHooks, hook)
}

type CreateInput struct {
	Title       string
	Description string
	Location    string
	Date        time.Time
	Category    string
	Type        domain.EventType
	PriceMinor  int64
	Quantity    int
	Banner      io.Reader
	CreatedBy   uuid.UUID
}

// Create builds the event and, for paid events, its single ticket. A free
// event must not carry inventory; a paid event must carry exactly one.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Event, error) {
	event, err := domain.NewEvent(in.Title, in.Description, in.Location, in.Category, in.Date, in.Type, in.CreatedBy)
	if err != nil {
		return domain.Event{}, err
	}

	var ticket *domain.Ticket
	if event.IsPaid() {
		t, err := domain.NewTicket(event.ID, in.PriceMinor, in.Quantity)
		if err != nil {
			return domain.Event{}, err
		}
		ticket = &t
	}

	if in.Banner != nil {
		asset, err := s.assets.Upload(ctx, in.Banner)
		if err != nil {
			return domain.Event{}, errors.Wrap(err, "upload banner")
		}
		event.BannerURL = asset.URL
		event.BannerPublicID = asset.PublicID
	}

	if err := s.store.CreateEvent(ctx, event, ticket); err != nil {
		if event.BannerPublicID != "" {
			if delErr := s.assets.Delete(ctx, event.BannerPublicID); delErr != nil {
				s.logger.WithField("event_id", event.ID).Error("failed to clean up banner after create failure", delErr)
			}
		}
		return domain.Event{}, err
	}

	return event, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	if cached, err := s.cache.GetEvent(ctx, id); err == nil && cached != nil {
		return *cached, nil
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}

	if err := s.cache.SetEvent(ctx, event, cacheTTL); err != nil {
		s.logger.WithField("event_id", id).Warn("failed to cache event", err)
	}
	return event, nil
}

func (s *Service) GetWithTicket(ctx context.Context, id uuid.UUID) (domain.Event, *domain.Ticket, error) {
	return s.store.EventWithTicket(ctx, id)
}

func (s *Service) List(ctx context.Context, status, eventType, sort string, limit int) ([]domain.Event, error) {
	return s.store.ListEvents(ctx, status, eventType, sort, limit)
}

type UpdateInput struct {
	Title       string
	Description string
	Location    string
	Date        time.Time
	Category    string
	Type        domain.EventType
	PriceMinor  int64
	Quantity    int
}

// Update is owner-only. Switching a free event to paid creates its
// ticket; edits keep the invariant that only paid events hold inventory.
func (s *Service) Update(ctx context.Context, id, ownerID uuid.UUID, in UpdateInput) (domain.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event.CreatedBy != ownerID {
		return domain.Event{}, domain.ErrNotFound
	}

	updated, err := domain.NewEvent(in.Title, in.Description, in.Location, in.Category, in.Date, in.Type, event.CreatedBy)
	if err != nil {
		return domain.Event{}, err
	}
	updated.ID = event.ID
	updated.BannerURL = event.BannerURL
	updated.BannerPublicID = event.BannerPublicID
	updated.CreatedAt = event.CreatedAt
	if event.Type == updated.Type {
		updated.Status = event.Status
	}

	var ticket *domain.Ticket
	if updated.IsPaid() {
		t, err := domain.NewTicket(updated.ID, in.PriceMinor, in.Quantity)
		if err != nil {
			return domain.Event{}, err
		}
		ticket = &t
	}

	if err := s.store.UpdateEvent(ctx, updated, ticket); err != nil {
		return domain.Event{}, err
	}

	if err := s.cache.InvalidateEvent(ctx, id); err != nil {
		s.logger.WithField("event_id", id).Warn("failed to invalidate event cache", err)
	}
	return updated, nil
}

// Delete removes the event and everything hanging off it, then runs the
// registered post-commit hooks (banner cleanup, cache invalidation,
// broker notification).
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	event, err := s.store.DeleteEvent(ctx, id, ownerID)
	if err != nil {
		return err
	}

	for _, hook := range s.deleteHooks {
		if err := hook(ctx, event); err != nil {
			s.logger.WithField("event_id", id).Error("post-delete hook failed", err)
		}
	}
	return nil
}

// SetBanner uploads a new banner, points the event at it and releases the
// previous asset. Owner-only.
func (s *Service) SetBanner(ctx context.Context, id, ownerID uuid.UUID, banner io.Reader) (domain.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event.CreatedBy != ownerID {
		return domain.Event{}, domain.ErrNotFound
	}

	asset, err := s.assets.Upload(ctx, banner)
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "upload banner")
	}

	oldPublicID := event.BannerPublicID
	event.BannerURL = asset.URL
	event.BannerPublicID = asset.PublicID

	if err := s.store.UpdateEvent(ctx, event, nil); err != nil {
		if delErr := s.assets.Delete(ctx, asset.PublicID); delErr != nil {
			s.logger.WithField("event_id", id).Error("failed to clean up banner after update failure", delErr)
		}
		return domain.Event{}, err
	}

	if oldPublicID != "" {
		if err := s.assets.Delete(ctx, oldPublicID); err != nil {
			s.logger.WithField("event_id", id).Warn("failed to delete replaced banner", err)
		}
	}
	if err := s.cache.InvalidateEvent(ctx, id); err != nil {
		s.logger.WithField("event_id", id).Warn("failed to invalidate event cache", err)
	}
	return event, nil
}

// ToggleRegistration flips the caller's registration for a free event and
// reports whether it now exists.
func (s *Service) ToggleRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	if !event.IsFree() {
		return false, errors.WithDetail(domain.ErrInvalidInput, "registrations are for free events; paid events sell tickets")
	}
	if !event.IsActive() {
		return false, domain.ErrNotFound
	}

	return s.store.ToggleRegistration(ctx, domain.NewRegistration(userID, eventID))
}

// Attendance reports the caller's relationship to an event: whether they
// are registered (free events) and whether they hold a purchase (paid).
func (s *Service) Attendance(ctx context.Context, eventID, userID uuid.UUID) (registered, purchased bool, err error) {
	registered, err = s.store.IsRegistered(ctx, userID, eventID)
	if err != nil {
		return false, false, err
	}
	purchased, err = s.store.HasPurchased(ctx, userID, eventID)
	if err != nil {
		return false, false, err
	}
	return registered, purchased, nil
}
