package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	l := New(Config{
		RPS:   10, // 10 requests per second = 100ms interval
		Burst: 1,
	})

	ctx := context.Background()
	url := "https://www.ncbi.nlm.nih.gov/geo/query/acc.cgi"

	// Consume initial token
	if err := l.Wait(ctx, url); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{
		RPS:   1, // 1 RPS = 1s interval
		Burst: 1,
	})

	ctx := context.Background()

	if err := l.Wait(ctx, "https://www.ncbi.nlm.nih.gov/geo"); err != nil {
		t.Fatal(err)
	}

	// PubMed should not be blocked by GEO
	start := time.Now()
	if err := l.Wait(ctx, "https://pubmed.ncbi.nlm.nih.gov/1/"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("second host blocked unexpectedly")
	}
}

func TestLimiter_DisabledAndCanceled(t *testing.T) {
	unlimited := New(Config{})
	for i := 0; i < 100; i++ {
		if err := unlimited.Wait(context.Background(), "https://example.com"); err != nil {
			t.Fatalf("unlimited wait failed: %v", err)
		}
	}

	l := New(Config{RPS: 0.001, Burst: 1})
	if err := l.Wait(context.Background(), "https://example.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, "https://example.com"); err == nil {
		t.Fatal("expected canceled wait to fail")
	}
}
