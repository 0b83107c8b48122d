package pg_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/MadGotten/Eventio/internal/adapters/pg"
	"github.com/MadGotten/Eventio/internal/domain"
)

func setupRepo(t *testing.T) (*pg.Repository, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, requires docker")
	}
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     "eventio",
				"POSTGRES_PASSWORD": "eventio",
				"POSTGRES_DB":       "eventio",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgres://eventio:eventio@%s:%s/eventio?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatal(err)
	}

	return pg.NewRepository(pool), pool
}

func createPaidEvent(t *testing.T, repo *pg.Repository, priceMinor int64, quantity int) domain.Event {
	t.Helper()
	event, err := domain.NewEvent("Concert", "live music", "Krakow", "music",
		time.Now().Add(24*time.Hour), domain.EventPaid, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	event.Status = domain.StatusApproved

	ticket, err := domain.NewTicket(event.ID, priceMinor, quantity)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateEvent(context.Background(), event, &ticket); err != nil {
		t.Fatal(err)
	}
	return event
}

func createFreeEvent(t *testing.T, repo *pg.Repository) domain.Event {
	t.Helper()
	event, err := domain.NewEvent("Meetup", "", "Krakow", "tech",
		time.Now().Add(24*time.Hour), domain.EventFree, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateEvent(context.Background(), event, nil); err != nil {
		t.Fatal(err)
	}
	return event
}

func openAttempt(t *testing.T, repo *pg.Repository, event domain.Event, userID uuid.UUID, quantity int, sessionID string) {
	t.Helper()
	ctx := context.Background()
	attempt := domain.NewCheckoutAttempt(event.ID, userID, quantity, 0)
	if err := repo.CreateAttempt(ctx, attempt); err != nil {
		t.Fatal(err)
	}
	if err := repo.OpenAttemptSession(ctx, attempt.ID, sessionID); err != nil {
		t.Fatal(err)
	}
}

func remaining(t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) int {
	t.Helper()
	var qty int
	err := pool.QueryRow(context.Background(),
		`SELECT quantity FROM tickets WHERE event_id = $1`, eventID).Scan(&qty)
	if err != nil {
		t.Fatal(err)
	}
	return qty
}

func TestReserveBoundary(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 5)

	// Asking for one more than remaining fails and leaves stock unchanged.
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.Reserve(ctx, tx, event.ID, 6)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := remaining(t, pool, event.ID); got != 5 {
		t.Fatalf("expected remaining 5, got %d", got)
	}

	// Exactly the remaining quantity drains the stock to zero.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		ticket, err := repo.Reserve(ctx, tx, event.ID, 5)
		if err != nil {
			return err
		}
		if ticket.Quantity != 0 {
			t.Errorf("expected ticket quantity 0 after reserve, got %d", ticket.Quantity)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := remaining(t, pool, event.ID); got != 0 {
		t.Fatalf("expected remaining 0, got %d", got)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.Reserve(ctx, tx, event.ID, 1)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on empty inventory, got %v", err)
	}

	// Restocking reopens sales.
	if err := repo.Restock(ctx, event.ID, 3); err != nil {
		t.Fatal(err)
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.Reserve(ctx, tx, event.ID, 2)
		return err
	})
	if err != nil {
		t.Fatalf("expected reserve after restock to succeed, got %v", err)
	}
	if got := remaining(t, pool, event.ID); got != 1 {
		t.Fatalf("expected remaining 1, got %d", got)
	}
}

func TestReserveRollsBackWithTransaction(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := repo.Reserve(ctx, tx, event.ID, 4); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := remaining(t, pool, event.ID); got != 10 {
		t.Fatalf("decrement leaked out of a rolled-back transaction: remaining %d", got)
	}
}

func TestReserveFreeEventNotFound(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	event := createFreeEvent(t, repo)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.Reserve(ctx, tx, event.ID, 1)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for free event, got %v", err)
	}
}

func TestSettleRecordsPurchase(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)
	buyer := uuid.New()
	openAttempt(t, repo, event, buyer, 4, "cs_settle_1")

	purchase, err := repo.Settle(ctx, event.ID, buyer, 4, "cs_settle_1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if purchase.AmountPaid != 4000 {
		t.Errorf("expected amount 4000, got %d", purchase.AmountPaid)
	}
	if purchase.EventName != event.Title {
		t.Errorf("expected snapshot title %q, got %q", event.Title, purchase.EventName)
	}
	if got := remaining(t, pool, event.ID); got != 6 {
		t.Errorf("expected remaining 6, got %d", got)
	}

	attempt, err := repo.AttemptBySession(ctx, "cs_settle_1")
	if err != nil {
		t.Fatal(err)
	}
	if attempt.State != domain.CheckoutSettled {
		t.Errorf("expected attempt SETTLED, got %s", attempt.State)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].EventType != "purchase.settled" {
		t.Errorf("expected one purchase.settled outbox record, got %v", records)
	}
}

func TestSettleSameSessionConflicts(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)
	buyer := uuid.New()
	openAttempt(t, repo, event, buyer, 2, "cs_dup")

	if _, err := repo.Settle(ctx, event.ID, buyer, 2, "cs_dup"); err != nil {
		t.Fatal(err)
	}
	_, err := repo.Settle(ctx, event.ID, buyer, 2, "cs_dup")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate session, got %v", err)
	}

	// One purchase, one decrement.
	var purchases int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM purchases WHERE session_id = 'cs_dup'`).Scan(&purchases); err != nil {
		t.Fatal(err)
	}
	if purchases != 1 {
		t.Errorf("expected 1 purchase, got %d", purchases)
	}
	if got := remaining(t, pool, event.ID); got != 8 {
		t.Errorf("expected remaining 8, got %d", got)
	}
}

func TestConcurrentSettleOverdraw(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)

	buyers := []uuid.UUID{uuid.New(), uuid.New()}
	sessions := []string{"cs_race_a", "cs_race_b"}
	for i := range buyers {
		openAttempt(t, repo, event, buyers[i], 6, sessions[i])
	}

	var successes, insufficient atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := range buyers {
		i := i
		g.Go(func() error {
			_, err := repo.Settle(gctx, event.ID, buyers[i], 6, sessions[i])
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if successes.Load() != 1 || insufficient.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d insufficient",
			successes.Load(), insufficient.Load())
	}
	if got := remaining(t, pool, event.ID); got != 4 {
		t.Errorf("expected remaining 4, got %d", got)
	}
}

func TestConcurrentReserveAccounting(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	const (
		stock    = 10
		perBuyer = 3
		buyers   = 8
	)
	event := createPaidEvent(t, repo, 1000, stock)

	for i := 0; i < buyers; i++ {
		openAttempt(t, repo, event, uuid.New(), perBuyer, fmt.Sprintf("cs_acct_%d", i))
	}

	var successes atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < buyers; i++ {
		i := i
		g.Go(func() error {
			_, err := repo.Settle(gctx, event.ID, uuid.New(), perBuyer, fmt.Sprintf("cs_acct_%d", i))
			if err == nil {
				successes.Add(1)
				return nil
			}
			if errors.Is(err, domain.ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	wantSuccesses := int32(stock / perBuyer)
	if successes.Load() != wantSuccesses {
		t.Errorf("expected %d successful reservations, got %d", wantSuccesses, successes.Load())
	}
	wantRemaining := stock - int(wantSuccesses)*perBuyer
	if got := remaining(t, pool, event.ID); got != wantRemaining {
		t.Errorf("expected remaining %d, got %d", wantRemaining, got)
	}
}

func TestToggleRegistration(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	event := createFreeEvent(t, repo)
	user := uuid.New()

	created, err := repo.ToggleRegistration(ctx, domain.NewRegistration(user, event.ID))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected first toggle to register")
	}

	registered, err := repo.IsRegistered(ctx, user, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !registered {
		t.Fatal("expected registration to exist")
	}

	created, err = repo.ToggleRegistration(ctx, domain.NewRegistration(user, event.ID))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("expected second toggle to unregister")
	}

	registered, err = repo.IsRegistered(ctx, user, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if registered {
		t.Fatal("expected registration to be gone")
	}
}

func TestUpdateEventToFreeDropsTicket(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)

	event.Type = domain.EventFree
	event.Status = domain.StatusApproved
	if err := repo.UpdateEvent(ctx, event, nil); err != nil {
		t.Fatal(err)
	}

	_, ticket, err := repo.EventWithTicket(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ticket != nil {
		t.Fatalf("free event still holds inventory: %+v", ticket)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM tickets WHERE event_id = $1`, event.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected no ticket rows, found %d", count)
	}

	// An attempt opened before the switch can no longer settle.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.Reserve(ctx, tx, event.ID, 1)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after ticket removal, got %v", err)
	}
}

func TestListEventsPopularSort(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	quiet := createFreeEvent(t, repo)
	busy := createFreeEvent(t, repo)
	for i := 0; i < 3; i++ {
		if _, err := repo.ToggleRegistration(ctx, domain.NewRegistration(uuid.New(), busy.ID)); err != nil {
			t.Fatal(err)
		}
	}

	listed, err := repo.ListEvents(ctx, "approved", "", "popular", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events, got %d", len(listed))
	}
	if listed[0].ID != busy.ID || listed[1].ID != quiet.ID {
		t.Errorf("expected popular ordering [%s %s], got [%s %s]", busy.ID, quiet.ID, listed[0].ID, listed[1].ID)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)
	buyer := uuid.New()
	openAttempt(t, repo, event, buyer, 1, "cs_cascade")
	if _, err := repo.Settle(ctx, event.ID, buyer, 1, "cs_cascade"); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.DeleteEvent(ctx, event.ID, event.CreatedBy)
	if err != nil {
		t.Fatal(err)
	}
	if deleted.ID != event.ID {
		t.Fatalf("expected deleted event %s, got %s", event.ID, deleted.ID)
	}

	for _, table := range []string{"tickets", "purchases", "checkout_attempts"} {
		var count int
		query := fmt.Sprintf(`SELECT count(*) FROM %s`, table)
		if err := pool.QueryRow(ctx, query).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("expected %s to cascade, found %d rows", table, count)
		}
	}
}

func TestExpireStaleAttempts(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	event := createPaidEvent(t, repo, 1000, 10)
	openAttempt(t, repo, event, uuid.New(), 1, "cs_stale")

	expired, err := repo.ExpireStaleAttempts(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired attempt, got %d", expired)
	}

	attempt, err := repo.AttemptBySession(ctx, "cs_stale")
	if err != nil {
		t.Fatal(err)
	}
	if attempt.State != domain.CheckoutAbandoned {
		t.Errorf("expected ABANDONED, got %s", attempt.State)
	}

	// A payment confirmed after the sweep still settles, and the attempt
	// record catches up with the purchase.
	if _, err := repo.Settle(ctx, event.ID, attempt.UserID, 1, "cs_stale"); err != nil {
		t.Fatal(err)
	}
	attempt, err = repo.AttemptBySession(ctx, "cs_stale")
	if err != nil {
		t.Fatal(err)
	}
	if attempt.State != domain.CheckoutSettled {
		t.Errorf("expected SETTLED after late settlement, got %s", attempt.State)
	}
}
