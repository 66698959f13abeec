package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/obiekwelu/chatwallet/internal/domain"
	"github.com/obiekwelu/chatwallet/internal/wallet"
)

// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
const SignatureHeader = "X-Gateway-Signature"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store         wallet.Store
	engine        *wallet.Engine
	currency      string
	webhookSecret string
	log           *zap.Logger
}

func NewHandler(s wallet.Store, engine *wallet.Engine, currency, webhookSecret string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: s, engine: engine, currency: currency, webhookSecret: webhookSecret, log: log.Named("api")}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	v1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	v1.HandleFunc("/accounts/{id}/credits", h.InitiateCredit).Methods("POST")
	v1.HandleFunc("/accounts/{id}/charges", h.ChargeAuthorization).Methods("POST")
	v1.HandleFunc("/accounts/{id}/debits", h.InitiateDebit).Methods("POST")
	v1.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods("GET")
	v1.HandleFunc("/transactions/{reference}/verify", h.VerifyTransaction).Methods("POST")
	r.HandleFunc("/webhooks/gateway", h.GatewayWebhook).Methods("POST")
}

type createAccountRequest struct {
	Email          string `json:"email"`
	OpeningBalance int64  `json:"opening_balance"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts"))
	defer timer.ObserveDuration()

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts")
		return
	}
	if req.Email == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "Email is required", "POST", "/accounts")
		return
	}
	if req.OpeningBalance < 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Opening balance cannot be negative", "POST", "/accounts")
		return
	}

	account, err := h.store.CreateAccount(r.Context(), req.Email, domain.NewMoney(req.OpeningBalance, h.currency))
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "GET", "/accounts/{id}")
	if !ok {
		return
	}
	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) InitiateCredit(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/credits"))
	defer timer.ObserveDuration()

	id, ok := h.accountID(w, r, "POST", "/accounts/{id}/credits")
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts/{id}/credits")
		return
	}

	intent, err := h.engine.InitiateCredit(r.Context(), id, domain.NewMoney(req.Amount, h.currency))
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/{id}/credits")
		return
	}
	h.respondJSON(w, http.StatusCreated, intent, "POST", "/accounts/{id}/credits")
}

func (h *Handler) ChargeAuthorization(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/charges"))
	defer timer.ObserveDuration()

	id, ok := h.accountID(w, r, "POST", "/accounts/{id}/charges")
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts/{id}/charges")
		return
	}

	intent, err := h.engine.ChargeAuthorization(r.Context(), id, domain.NewMoney(req.Amount, h.currency))
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/{id}/charges")
		return
	}

	// The provider usually answers inline charges synchronously; settle
	// now if it can be verified, otherwise hand back the pending intent
	// for a later verify or webhook.
	if res, err := h.engine.Reconcile(r.Context(), intent.Reference); err == nil && res.Transaction.Status.Terminal() {
		h.respondJSON(w, http.StatusOK, res, "POST", "/accounts/{id}/charges")
		return
	}
	h.respondJSON(w, http.StatusAccepted, intent, "POST", "/accounts/{id}/charges")
}

type debitRequest struct {
	Amount      int64              `json:"amount"`
	Destination wallet.Destination `json:"destination"`
}

func (h *Handler) InitiateDebit(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/debits"))
	defer timer.ObserveDuration()

	id, ok := h.accountID(w, r, "POST", "/accounts/{id}/debits")
	if !ok {
		return
	}
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts/{id}/debits")
		return
	}

	intent, err := h.engine.InitiateDebit(r.Context(), id, domain.NewMoney(req.Amount, h.currency), req.Destination)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/{id}/debits")
		return
	}
	h.respondJSON(w, http.StatusCreated, intent, "POST", "/accounts/{id}/debits")
}

type listResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "GET", "/accounts/{id}/transactions")
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	txns, total, err := h.engine.List(r.Context(), id, page, pageSize)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, listResponse{
		Transactions: txns,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}, "GET", "/accounts/{id}/transactions")
}

func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transactions/{reference}/verify"))
	defer timer.ObserveDuration()

	ref := mux.Vars(r)["reference"]
	res, err := h.engine.Reconcile(r.Context(), ref)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/transactions/{reference}/verify")
		return
	}
	h.respondJSON(w, http.StatusOK, res, "POST", "/transactions/{reference}/verify")
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// GatewayWebhook handles asynchronous provider notifications. The payload's
// status field is never trusted: the reference is re-verified against the
// gateway inside Reconcile, so replayed or forged bodies cannot move money.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/webhooks/gateway"))
	defer timer.ObserveDuration()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Stream read error", "POST", "/webhooks/gateway")
		return
	}

	if !h.validSignature(body, r.Header.Get(SignatureHeader)) {
		h.log.Warn("webhook rejected: bad signature", zap.String("remote", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "Invalid signature", "POST", "/webhooks/gateway")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data.Reference == "" {
		h.respondError(w, http.StatusBadRequest, "Malformed payload", "POST", "/webhooks/gateway")
		return
	}

	h.log.Info("webhook received",
		zap.String("event", payload.Event),
		zap.String("reference", payload.Data.Reference),
	)

	res, err := h.engine.Reconcile(r.Context(), payload.Data.Reference)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/webhooks/gateway")
		return
	}
	h.respondJSON(w, http.StatusOK, res, "POST", "/webhooks/gateway")
}

func (h *Handler) validSignature(body []byte, header string) bool {
	if header == "" || h.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// Helpers

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 1 {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", method, endpoint)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1 // let the engine reject it as a validation error
	}
	return n
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrCurrencyMismatch):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, domain.ErrDuplicateReference), errors.Is(err, domain.ErrAlreadyTerminal):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrGatewayRejected):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrGatewayUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "Payment gateway unavailable, retry later", method, endpoint)
	case errors.Is(err, domain.ErrGatewayProtocol):
		h.log.Error("gateway protocol error", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "Unexpected gateway response", method, endpoint)
	default:
		h.log.Error("internal error", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
