package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MercadoPagoName is the registry key of the MercadoPago adapter
const MercadoPagoName = "mercadopago"

var mercadoPagoStatuses = map[string]Status{
	"approved":     StatusCompleted,
	"rejected":     StatusFailed,
	"cancelled":    StatusFailed,
	"refunded":     StatusFailed,
	"charged_back": StatusFailed,
	"pending":      StatusPending,
	"in_process":   StatusPending,
	"authorized":   StatusPending,
}

// MercadoPagoGateway creates checkout preferences and reads payment
// notifications. Signatures are hex HMAC-SHA256 of the raw body.
type MercadoPagoGateway struct {
	config Config
	mock   bool
	logger *logrus.Logger
	client *http.Client
}

type mercadoPagoItem struct {
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	CurrencyID string      `json:"currency_id"`
	UnitPrice  json.Number `json:"unit_price"`
}

type mercadoPagoPreferenceRequest struct {
	Items             []mercadoPagoItem `json:"items"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	Payer             map[string]string `json:"payer,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type mercadoPagoPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// MercadoPagoWebhook is the notification body the adapter accepts
type MercadoPagoWebhook struct {
	Action string `json:"action"`
	Data   struct {
		ID                string `json:"id"`
		PreferenceID      string `json:"preference_id"`
		Status            string `json:"status"`
		ExternalReference string `json:"external_reference"`
	} `json:"data"`
}

// NewMercadoPagoGateway creates the adapter. Without credentials it runs in
// mock mode.
func NewMercadoPagoGateway(cfg Config, logger *logrus.Logger) *MercadoPagoGateway {
	g := &MercadoPagoGateway{
		config: cfg,
		mock:   !cfg.configured(),
		logger: logger,
		client: newHTTPClient(),
	}
	if g.mock {
		logger.WithField("gateway", MercadoPagoName).Warn("⚠️  Payment gateway running in MOCK mode - no real charges will be made")
	}
	return g
}

func (g *MercadoPagoGateway) Name() string { return MercadoPagoName }
func (g *MercadoPagoGateway) IsMock() bool { return g.mock }

// CreatePaymentLink opens a checkout preference for the transaction
func (g *MercadoPagoGateway) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*Link, error) {
	if g.mock {
		return mockLink(MercadoPagoName), nil
	}

	body := mercadoPagoPreferenceRequest{
		Items: []mercadoPagoItem{{
			Title:      req.Description,
			Quantity:   1,
			CurrencyID: req.Currency,
			UnitPrice:  json.Number(req.Amount.StringFixed(2)),
		}},
		ExternalReference: req.TransactionID,
		NotificationURL:   g.config.NotificationURL,
		Metadata:          req.Metadata,
	}
	if g.config.ReturnURL != "" {
		body.BackURLs = map[string]string{"success": g.config.ReturnURL, "failure": g.config.ReturnURL, "pending": g.config.ReturnURL}
	}
	if req.CustomerEmail != "" {
		body.Payer = map[string]string{"email": req.CustomerEmail, "name": req.CustomerName}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(g.config.APIBaseURL, "/") + "/checkout/preferences"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.config.AccessToken)
	httpReq.Header.Set("X-Idempotency-Key", req.TransactionID)

	g.logger.WithFields(logrus.Fields{
		"gateway":        MercadoPagoName,
		"transaction_id": req.TransactionID,
		"amount":         req.Amount.StringFixed(2),
		"currency":       req.Currency,
	}).Info("Creating payment link")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var pref mercadoPagoPreferenceResponse
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return nil, fmt.Errorf("payment link creation failed: incomplete response")
	}

	return &Link{PaymentURL: pref.InitPoint, TransactionID: pref.ID}, nil
}

// VerifySignature checks a hex HMAC-SHA256 of the raw payload
func (g *MercadoPagoGateway) VerifySignature(payload []byte, signature string) bool {
	if g.mock {
		return true
	}
	return verifyHex(payload, signature, g.config.WebhookSecret)
}

// ProcessWebhook verifies and normalizes a notification. The preference id
// is the transaction id stored at link creation.
func (g *MercadoPagoGateway) ProcessWebhook(payload []byte, signature string) *WebhookEvent {
	if !g.VerifySignature(payload, signature) {
		return rejected("invalid signature")
	}

	var hook MercadoPagoWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return rejected("unparsable payload")
	}
	if hook.Data.PreferenceID == "" {
		return rejected("missing preference id")
	}

	status := MapMercadoPagoStatus(hook.Data.Status)
	if g.mock {
		status = StatusCompleted
	}
	return &WebhookEvent{
		Success:       true,
		TransactionID: hook.Data.PreferenceID,
		Status:        status,
		RawStatus:     hook.Data.Status,
	}
}

// MapMercadoPagoStatus normalizes a MercadoPago status. Unknown values map to PENDING.
func MapMercadoPagoStatus(raw string) Status {
	if status, ok := mercadoPagoStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusPending
}

func mockLink(gateway string) *Link {
	id := "mock_" + uuid.New().String()
	return &Link{
		PaymentURL:    fmt.Sprintf("https://mock.%s.local/checkout/%s", gateway, id),
		TransactionID: id,
	}
}
