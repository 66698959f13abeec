// Package gateway implements the HTTP client for the external payment
// provider. Provider failures are mapped onto three classes: business
// declines (ErrGatewayRejected), transient faults worth retrying
// (ErrGatewayUnavailable) and malformed responses needing investigation
// (ErrGatewayProtocol). A circuit breaker fails calls fast while the provider
// is down.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/obiekwelu/chatwallet/internal/domain"
	"github.com/obiekwelu/chatwallet/internal/wallet"
)

var callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_calls_total",
	Help: "Gateway calls, labeled by operation and result",
}, []string{"operation", "result"})

// Config holds the provider connection settings.
type Config struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
}

// Client talks to the payment provider over HTTP JSON with a bearer secret.
type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	logger := log.Named("gateway")

	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Business declines are healthy provider behavior; only
			// transport-level faults should trip the breaker.
			return err == nil || !errors.Is(err, domain.ErrGatewayUnavailable)
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     logger,
	}
}

// envelope is the provider's response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, operation, method, path string, body, out any) error {
	err := c.do(ctx, method, path, body, out)
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrGatewayRejected):
		result = "rejected"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		result = "unavailable"
	case err != nil:
		result = "protocol_error"
	}
	callsTotal.WithLabelValues(operation, result).Inc()
	if err != nil {
		c.log.Warn("gateway call failed",
			zap.String("operation", operation),
			zap.String("result", result),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpc.Do(req)
		if err != nil {
			// Includes timeouts: the true outcome is unknown and must
			// be resolved by a later verify.
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: provider returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: undecodable body (HTTP %d)", domain.ErrGatewayProtocol, resp.StatusCode)
		}
		if resp.StatusCode >= 400 || !env.Status {
			return nil, fmt.Errorf("%w: %s (HTTP %d)", domain.ErrGatewayRejected, env.Message, resp.StatusCode)
		}
		return env.Data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", domain.ErrGatewayUnavailable)
		}
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw.(json.RawMessage), out); err != nil {
			return fmt.Errorf("%w: undecodable data payload", domain.ErrGatewayProtocol)
		}
	}
	return nil
}

type creditInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *Client) InitializeCredit(ctx context.Context, email string, amount domain.Money) (*wallet.CreditInit, error) {
	body := map[string]any{
		"email":    email,
		"amount":   amount.Amount,
		"currency": amount.Currency,
	}
	var data creditInitData
	if err := c.call(ctx, "initialize_credit", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if data.Reference == "" || data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: initialize response missing reference or authorization_url", domain.ErrGatewayProtocol)
	}
	return &wallet.CreditInit{AuthorizationURL: data.AuthorizationURL, Reference: data.Reference}, nil
}

type chargeData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

func (c *Client) ChargeAuthorization(ctx context.Context, email, token string, amount domain.Money) (*wallet.ChargeInit, error) {
	body := map[string]any{
		"email":              email,
		"authorization_code": token,
		"amount":             amount.Amount,
		"currency":           amount.Currency,
	}
	var data chargeData
	if err := c.call(ctx, "charge_authorization", http.MethodPost, "/transaction/charge_authorization", body, &data); err != nil {
		return nil, err
	}
	if data.Reference == "" {
		return nil, fmt.Errorf("%w: charge response missing reference", domain.ErrGatewayProtocol)
	}
	status, err := mapVerifyStatus(data.Status)
	if err != nil {
		return nil, err
	}
	return &wallet.ChargeInit{Status: status, Reference: data.Reference}, nil
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

func (c *Client) CreateRecipient(ctx context.Context, dest wallet.Destination) (string, error) {
	body := map[string]any{
		"type":           "nuban",
		"name":           dest.Name,
		"account_number": dest.AccountNumber,
		"bank_code":      dest.BankCode,
	}
	var data recipientData
	if err := c.call(ctx, "create_recipient", http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", fmt.Errorf("%w: recipient response missing recipient_code", domain.ErrGatewayProtocol)
	}
	return data.RecipientCode, nil
}

type transferData struct {
	Reference string `json:"reference"`
}

func (c *Client) InitiateTransfer(ctx context.Context, recipientCode string, amount domain.Money, reason string) (*wallet.TransferInit, error) {
	body := map[string]any{
		"source":    "balance",
		"recipient": recipientCode,
		"amount":    amount.Amount,
		"currency":  amount.Currency,
		"reason":    reason,
	}
	var data transferData
	if err := c.call(ctx, "initiate_transfer", http.MethodPost, "/transfer", body, &data); err != nil {
		return nil, err
	}
	if data.Reference == "" {
		return nil, fmt.Errorf("%w: transfer response missing reference", domain.ErrGatewayProtocol)
	}
	return &wallet.TransferInit{Reference: data.Reference}, nil
}

type verifyData struct {
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
		Reusable          bool   `json:"reusable"`
	} `json:"authorization"`
}

func (c *Client) Verify(ctx context.Context, reference string, direction domain.Direction) (*wallet.Verification, error) {
	path := "/transaction/verify/" + reference
	if direction == domain.DirectionDebit {
		path = "/transfer/verify/" + reference
	}

	var data verifyData
	if err := c.call(ctx, "verify", http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	status, err := mapVerifyStatus(data.Status)
	if err != nil {
		return nil, err
	}

	v := &wallet.Verification{
		Status: status,
		Amount: domain.NewMoney(data.Amount, data.Currency),
	}
	if data.Authorization.Reusable {
		v.AuthorizationToken = data.Authorization.AuthorizationCode
	}
	return v, nil
}

// mapVerifyStatus collapses the provider's status vocabulary onto the three
// outcomes the engine understands. Unknown values are a protocol error, not a
// guess.
func mapVerifyStatus(s string) (wallet.VerifyStatus, error) {
	switch s {
	case "success":
		return wallet.VerifySuccess, nil
	case "failed", "abandoned", "reversed":
		return wallet.VerifyFailed, nil
	case "pending", "processing", "ongoing", "queued", "send_otp", "otp":
		return wallet.VerifyPending, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", domain.ErrGatewayProtocol, s)
	}
}
