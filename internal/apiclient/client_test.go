package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

func TestClientDoDecodesDataEnvelope(t *testing.T) {
	var captured *http.Request
	var capturedBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &capturedBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"url":"https://pay.example.com/abc"}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	var out struct {
		URL string `json:"url"`
	}
	err = client.Do(context.Background(), Request{
		Method:         http.MethodPost,
		Path:           "/api/v1/checkout",
		Body:           map[string]any{"discountCode": "SAVE10"},
		Token:          "tok",
		IdempotencyKey: "key-1",
	}, &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.URL != "https://pay.example.com/abc" {
		t.Fatalf("unexpected url %q", out.URL)
	}
	if captured.URL.Path != "/api/v1/checkout" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	if got := captured.Header.Get("Idempotency-Key"); got != "key-1" {
		t.Fatalf("unexpected idempotency header %q", got)
	}
	if captured.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	if capturedBody["discountCode"] != "SAVE10" {
		t.Fatalf("unexpected body %v", capturedBody)
	}
}

func TestClientDoMapsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"DISCOUNT_REJECTED","message":"discount code expired","details":{"reason":"expired","code":"OLD"},"requestId":"req-7"}}`))
	}))
	defer srv.Close()

	client, _ := New(srv.URL)
	err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "api/v1/discount/validate"}, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDiscountRejected) {
		t.Fatalf("expected discount rejected, got %v", err)
	}
	if got := pkgerrors.DetailString(err, "reason"); got != "expired" {
		t.Fatalf("expected reason expired, got %q", got)
	}
	if got := pkgerrors.As(err).Message(); got != "discount code expired" {
		t.Fatalf("unexpected message %q", got)
	}
	if StatusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", StatusOf(err))
	}
	if IsTransport(err) {
		t.Fatalf("http error must not be reported as transport")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.RequestID != "req-7" {
		t.Fatalf("expected request id on status error, got %v", err)
	}
}

func TestClientDoFallsBackToStatusCode(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusBadGateway, pkgerrors.CodeDependency},
		{http.StatusTeapot, pkgerrors.CodeValidation},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("plain failure"))
		}))
		client, _ := New(srv.URL)
		err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/cart"}, nil)
		srv.Close()
		if !pkgerrors.HasCode(err, tt.code) {
			t.Fatalf("status %d: expected %s, got %v", tt.status, tt.code, err)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !strings.Contains(statusErr.Error(), "plain failure") {
			t.Fatalf("status %d: expected body in status error, got %v", tt.status, err)
		}
	}
}

func TestClientDoTransportFailure(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client, _ := New("http://storefront.test", WithHTTPClient(&http.Client{Transport: rt}))

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/cart"}, nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
