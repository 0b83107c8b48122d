package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/MadGotten/Eventio/internal/adapters/mongo"
	"github.com/MadGotten/Eventio/internal/adapters/pg"
	"github.com/MadGotten/Eventio/internal/adapters/rabbit"
	redisadapter "github.com/MadGotten/Eventio/internal/adapters/redis"
	"github.com/MadGotten/Eventio/internal/assets"
	"github.com/MadGotten/Eventio/internal/checkout"
	"github.com/MadGotten/Eventio/internal/events"
	httphandler "github.com/MadGotten/Eventio/internal/http"
	"github.com/MadGotten/Eventio/internal/idempotency"
	"github.com/MadGotten/Eventio/internal/observability"
	"github.com/MadGotten/Eventio/internal/outbox"
	"github.com/MadGotten/Eventio/internal/payment"
	"github.com/MadGotten/Eventio/internal/rateLimit"
)

// stubGateway stands in for the card processor: sessions open instantly
// and every session reads back as paid.
type stubGateway struct {
	mu     sync.Mutex
	opened int
}

func (g *stubGateway) OpenSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened++
	id := fmt.Sprintf("cs_itest_%d", g.opened)
	return payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *stubGateway) GetSession(ctx context.Context, id string) (payment.Session, error) {
	return payment.Session{ID: id, Completed: true}, nil
}

func (g *stubGateway) sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

type nopAssets struct{}

func (nopAssets) Upload(ctx context.Context, r io.Reader) (assets.Asset, error) {
	return assets.Asset{}, nil
}
func (nopAssets) Delete(ctx context.Context, publicID string) error { return nil }

func TestIntegration_CheckoutFlow(t *testing.T) {
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
	defer pgContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	mongoHost, _ := mongoContainer.Host(ctx)
	mongoPort, _ := mongoContainer.MappedPort(ctx, "27017")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")
	rabbitHost, _ := rabbitContainer.Host(ctx)
	rabbitPort, _ := rabbitContainer.MappedPort(ctx, "5672")

	dsn := fmt.Sprintf("postgres://eventio:eventio@%s:%s/eventio?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatal(err)
	}
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoHost+":"+mongoPort.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewNopLogger()
	recon := mongoadapter.NewReconciliationLog(mongoClient.Database("eventio"), logger)

	rdb := redisclient.NewClient(&redisclient.Options{Addr: redisHost + ":" + redisPort.Port()})
	cache := redisadapter.NewCache(rdb)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(rdb), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "integration.purchases", "purchase.settled")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	gateway := &stubGateway{}
	checkoutSvc := checkout.NewService(repo, gateway, recon, logger, "usd", "https://eventio.test", 5*time.Second)
	eventSvc := events.NewService(repo, cache, nopAssets{}, logger)

	handlers := httphandler.NewHandlers(checkoutSvc, eventSvc, repo, idemp, logger)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl))
	defer srv.Close()

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(relayCtx)

	organizer := uuid.NewString()
	buyer := uuid.NewString()

	// Create a paid event.
	createBody, _ := json.Marshal(map[string]interface{}{
		"title":       "Integration Fest",
		"location":    "Lodz",
		"category":    "music",
		"date":        time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"event_type":  "paid",
		"price_minor": 1000,
		"quantity":    10,
	})
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	doJSON(t, srv, http.MethodPost, "/v1/events", organizer, "", createBody, http.StatusCreated, &created)

	// Paid events start pending; approve it the way moderation would.
	if _, err := pool.Exec(ctx, `UPDATE events SET status = 'approved' WHERE id = $1`, created.ID); err != nil {
		t.Fatal(err)
	}

	// The listing shows price and stock.
	var shown struct {
		Price     string `json:"price"`
		Remaining *int   `json:"remaining"`
	}
	doJSON(t, srv, http.MethodGet, "/v1/events/"+created.ID.String(), "", "", nil, http.StatusOK, &shown)
	if shown.Price != "10.00" || shown.Remaining == nil || *shown.Remaining != 10 {
		t.Fatalf("unexpected event view: price=%q remaining=%v", shown.Price, shown.Remaining)
	}

	// Open a checkout session for 4 tickets.
	key := uuid.NewString()
	checkoutBody := []byte(`{"quantity":4}`)
	var opened struct {
		CheckoutURL string `json:"checkout_url"`
	}
	doJSON(t, srv, http.MethodPost, "/v1/events/"+created.ID.String()+"/checkout", buyer, key, checkoutBody, http.StatusCreated, &opened)
	if opened.CheckoutURL != "https://pay.example/cs_itest_1" {
		t.Fatalf("unexpected checkout url %q", opened.CheckoutURL)
	}

	// Replaying the POST with the same key returns the stored response
	// without opening a second session.
	var replayed struct {
		CheckoutURL string `json:"checkout_url"`
	}
	doJSON(t, srv, http.MethodPost, "/v1/events/"+created.ID.String()+"/checkout", buyer, key, checkoutBody, http.StatusCreated, &replayed)
	if replayed.CheckoutURL != opened.CheckoutURL {
		t.Fatalf("replay returned %q, want %q", replayed.CheckoutURL, opened.CheckoutURL)
	}
	if gateway.sessions() != 1 {
		t.Fatalf("expected 1 gateway session, got %d", gateway.sessions())
	}

	// The success redirect settles the purchase.
	var purchase struct {
		ID       uuid.UUID `json:"id"`
		Total    string    `json:"total"`
		Quantity int       `json:"quantity"`
	}
	doJSON(t, srv, http.MethodGet, "/v1/checkout/success?session_id=cs_itest_1", buyer, "", nil, http.StatusOK, &purchase)
	if purchase.Total != "40.00" || purchase.Quantity != 4 {
		t.Fatalf("unexpected purchase: %+v", purchase)
	}

	// Reloading the success page settles nothing twice.
	var again struct {
		ID uuid.UUID `json:"id"`
	}
	doJSON(t, srv, http.MethodGet, "/v1/checkout/success?session_id=cs_itest_1", buyer, "", nil, http.StatusOK, &again)
	if again.ID != purchase.ID {
		t.Fatalf("second settle produced a different purchase: %s vs %s", again.ID, purchase.ID)
	}

	// Stock went down exactly once.
	doJSON(t, srv, http.MethodGet, "/v1/events/"+created.ID.String(), "", "", nil, http.StatusOK, &shown)
	if shown.Remaining == nil || *shown.Remaining != 6 {
		t.Fatalf("expected remaining 6, got %v", shown.Remaining)
	}

	// The buyer can read the receipt back, another user cannot.
	doJSON(t, srv, http.MethodGet, "/v1/purchases/"+purchase.ID.String(), buyer, "", nil, http.StatusOK, nil)
	doJSON(t, srv, http.MethodGet, "/v1/purchases/"+purchase.ID.String(), uuid.NewString(), "", nil, http.StatusNotFound, nil)

	// The outbox relay delivers the settlement to the broker.
	select {
	case msg := <-deliveries:
		if msg.MessageId != "cs_itest_1" {
			t.Fatalf("unexpected dedupe key %q", msg.MessageId)
		}
		msg.Ack(false)
	case <-time.After(30 * time.Second):
		t.Fatal("purchase.settled never reached the broker")
	}

	// The settlement left an audit entry in the reconciliation log.
	count, err := mongoClient.Database("eventio").Collection("reconciliation").
		CountDocuments(ctx, bson.M{"action": "checkout.settled", "session_id": "cs_itest_1"})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reconciliation entry, got %d", count)
	}
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, user, idempKey string, body []byte, wantStatus int, out interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if idempKey != "" {
		req.Header.Set("Idempotency-Key", idempKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
}
