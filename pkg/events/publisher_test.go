package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

func TestNewPublisher_InvalidURL(t *testing.T) {
	if _, err := NewPublisher("not-a-redis-url", "ch"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestNewPublisher_Unreachable(t *testing.T) {
	// Port 1 on loopback refuses connections
	if _, err := NewPublisher("redis://127.0.0.1:1/0", "ch"); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestNotifyFailure_UnreachableDoesNotPanic(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	p := NewPublisherWithClient(client, "keypool:failures")
	defer p.Close()

	if p.Channel() != "keypool:failures" {
		t.Errorf("Channel() = %q", p.Channel())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.NotifyFailure(ctx, models.ErrorLogEntry{
		ID:          "1",
		Timestamp:   time.Now(),
		KeyID:       "AIzaSyExampleSecretKey",
		Message:     "HTTP 429",
		RequestPath: "/gemini/v1beta/models",
	})
}
