package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}

func get(url string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestDoRetries(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32 // number of 503 answers before a 200
		status       int   // status used instead of 503 when set
		wantAttempts int32
		wantErr      bool
		wantStatus   int
	}{
		{name: "success first attempt", failures: 0, wantAttempts: 1, wantStatus: http.StatusOK},
		{name: "recovers after server errors", failures: 2, wantAttempts: 3, wantStatus: http.StatusOK},
		{name: "gives up after max attempts", failures: 10, wantAttempts: 3, wantErr: true},
		{name: "client errors are not retried", failures: 10, status: http.StatusBadRequest, wantAttempts: 1, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				if n <= tt.failures {
					if tt.status != 0 {
						w.WriteHeader(tt.status)
					} else {
						w.WriteHeader(http.StatusServiceUnavailable)
					}
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := Do(context.Background(), nil, client, fastRetry, get(srv.URL))
			if tt.wantErr {
				if err == nil {
					resp.Body.Close()
					t.Fatalf("expected an error")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				defer resp.Body.Close()
				if resp.StatusCode != tt.wantStatus {
					t.Errorf("got status %d, wanted %d", resp.StatusCode, tt.wantStatus)
				}
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("got %d attempts, wanted %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	_, err := Do(ctx, nil, &http.Client{Timeout: 5 * time.Second}, cfg, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	if err == nil {
		t.Fatal("expected an error from context cancellation")
	}
}

func TestDoClientTimeoutIsRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), nil, &http.Client{Timeout: 50 * time.Millisecond}, fastRetry, get(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if attempts.Load() != 2 {
		t.Errorf("got %d attempts, wanted 2", attempts.Load())
	}
}
