package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		0:          "0.00 USD",
		5.99:       "5.99 USD",
		1234.5:     "1,234.50 USD",
		1234567.89: "1,234,567.89 USD",
	}
	for in, want := range cases {
		if got := FormatPrice(in, ""); got != want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestTelegramNotifyNewOrder(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42")
	svc.apiBase = srv.URL

	err := svc.NotifyNewOrder(OrderNotification{
		OrderNumber:  "ORD-1-001",
		Items:        []OrderItemNotification{{Name: "Serum", Quantity: 2, Price: 25}},
		TotalAmount:  50,
		Currency:     "USD",
		CustomerName: "Ada Lovelace",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if path != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if got.ChatID != "42" || !strings.Contains(got.Text, "ORD-1-001") || !strings.Contains(got.Text, "50.00 USD") {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestTelegramReportsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42")
	svc.apiBase = srv.URL
	if err := svc.NotifyLowStock([]LowStockNotification{{Name: "Serum", SKU: "S1", Stock: 1, Threshold: 5}}); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestCatalogCacheRoundTripAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cache := NewCatalogCache(rdb, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, "featured:8", []string{"serum", "toner"})
	var out []string
	if !cache.Get(ctx, "featured:8", &out) || len(out) != 2 {
		t.Fatalf("cache miss after set: %v", out)
	}
	if err := rdb.Set(ctx, "session:abc", "keep", 0).Err(); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}

	cache.Invalidate(ctx)
	if cache.Get(ctx, "featured:8", &out) {
		t.Fatalf("entry survived invalidation")
	}
	if !mr.Exists("session:abc") {
		t.Fatalf("invalidation removed a key outside the catalog prefix")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var cache *CatalogCache
	var out []string
	cache.Set(context.Background(), "k", []string{"v"})
	if cache.Get(context.Background(), "k", &out) {
		t.Fatalf("nil cache returned a hit")
	}
	cache.Invalidate(context.Background())
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	done chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestNotifierPublishesInBackground(t *testing.T) {
	pub := &recordingPublisher{done: make(chan struct{}, 1)}
	n := NewNotifier(pub, nil, "USD")

	n.Publish(EventStockLow, map[string]any{"sku": "S1"})

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("event was not published")
	}
	if pub.keys[0] != EventStockLow {
		t.Fatalf("routing key = %q", pub.keys[0])
	}
}
