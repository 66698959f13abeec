package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obiekwelu/chatwallet/internal/domain"
	"github.com/obiekwelu/chatwallet/internal/wallet"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Secret: "sk_test_x", Timeout: 2 * time.Second}, nil)
}

func TestInitializeCredit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_x" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://pay.example/abc","access_code":"abc","reference":"R1"}}`))
	})

	init, err := client.InitializeCredit(context.Background(), "user@chat.example", domain.NewMoney(5000, "NGN"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if init.Reference != "R1" || init.AuthorizationURL != "https://pay.example/abc" {
		t.Fatalf("init = %+v", init)
	}
}

func TestInitializeCreditMissingReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"data":{"authorization_url":"https://pay.example/abc"}}`))
	})

	_, err := client.InitializeCredit(context.Background(), "user@chat.example", domain.NewMoney(5000, "NGN"))
	if !errors.Is(err, domain.ErrGatewayProtocol) {
		t.Fatalf("expected ErrGatewayProtocol, got %v", err)
	}
}

func TestErrorClassMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: domain.ErrGatewayUnavailable,
		},
		{
			name: "business decline is rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":false,"message":"Invalid amount"}`))
			},
			want: domain.ErrGatewayRejected,
		},
		{
			name: "envelope status false is rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":false,"message":"Charge attempted but declined"}`))
			},
			want: domain.ErrGatewayRejected,
		},
		{
			name: "garbage body is protocol error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>maintenance</html>`))
			},
			want: domain.ErrGatewayProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.InitializeCredit(context.Background(), "user@chat.example", domain.NewMoney(5000, "NGN"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, Secret: "sk", Timeout: 20 * time.Millisecond}, nil)

	_, err := client.Verify(context.Background(), "R1", domain.DirectionCredit)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, Secret: "sk", Timeout: time.Second}, nil)

	for i := 0; i < 6; i++ {
		_, err := client.Verify(context.Background(), "R1", domain.DirectionCredit)
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("call %d: expected ErrGatewayUnavailable, got %v", i, err)
		}
	}
	if hits > 5 {
		t.Fatalf("breaker never opened: %d upstream hits", hits)
	}
}

func TestVerifyRouting(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transaction/verify/RC":
			w.Write([]byte(`{"status":true,"data":{"status":"success","amount":5000,"currency":"NGN","authorization":{"authorization_code":"AUTH_1","reusable":true}}}`))
		case "/transfer/verify/RD":
			w.Write([]byte(`{"status":true,"data":{"status":"pending","amount":5000,"currency":"NGN"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	v, err := client.Verify(context.Background(), "RC", domain.DirectionCredit)
	if err != nil {
		t.Fatalf("credit verify: %v", err)
	}
	if v.Status != wallet.VerifySuccess || v.Amount.Amount != 5000 || v.AuthorizationToken != "AUTH_1" {
		t.Fatalf("credit verification = %+v", v)
	}

	v, err = client.Verify(context.Background(), "RD", domain.DirectionDebit)
	if err != nil {
		t.Fatalf("debit verify: %v", err)
	}
	if v.Status != wallet.VerifyPending || v.AuthorizationToken != "" {
		t.Fatalf("debit verification = %+v", v)
	}
}

func TestMapVerifyStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    wallet.VerifyStatus
		wantErr bool
	}{
		{in: "success", want: wallet.VerifySuccess},
		{in: "failed", want: wallet.VerifyFailed},
		{in: "abandoned", want: wallet.VerifyFailed},
		{in: "reversed", want: wallet.VerifyFailed},
		{in: "pending", want: wallet.VerifyPending},
		{in: "processing", want: wallet.VerifyPending},
		{in: "otp", want: wallet.VerifyPending},
		{in: "jackpot", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := mapVerifyStatus(tt.in)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrGatewayProtocol) {
				t.Errorf("mapVerifyStatus(%q): expected ErrGatewayProtocol, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("mapVerifyStatus(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
}
