package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// IzipayName is the registry key of the Izipay adapter
const IzipayName = "izipay"

var izipayStatuses = map[string]Status{
	"PAID":           StatusCompleted,
	"UNPAID":         StatusFailed,
	"ABANDONED":      StatusFailed,
	"REFUSED":        StatusFailed,
	"ERROR":          StatusFailed,
	"RUNNING":        StatusPending,
	"PARTIALLY_PAID": StatusPending,
}

// IzipayGateway creates payment orders. Notifications are signed with a
// base64 HMAC-SHA256 of the raw body.
type IzipayGateway struct {
	config Config
	mock   bool
	logger *logrus.Logger
	client *http.Client
}

type izipayOrderRequest struct {
	Amount      int64             `json:"amount"` // minor units
	Currency    string            `json:"currency"`
	OrderID     string            `json:"orderId"`
	Channel     map[string]string `json:"channelOptions,omitempty"`
	Customer    map[string]string `json:"customer,omitempty"`
	IPNURL      string            `json:"ipnTargetUrl,omitempty"`
	ReturnURL   string            `json:"returnUrl,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type izipayOrderResponse struct {
	Status string `json:"status"`
	Answer struct {
		PaymentOrderID string `json:"paymentOrderId"`
		PaymentURL     string `json:"paymentURL"`
		ErrorMessage   string `json:"errorMessage"`
	} `json:"answer"`
}

// IzipayWebhook is the notification body the adapter accepts
type IzipayWebhook struct {
	PaymentOrderID string `json:"paymentOrderId"`
	OrderID        string `json:"orderId"`
	OrderStatus    string `json:"orderStatus"`
}

// NewIzipayGateway creates the adapter. Without credentials it runs in mock mode.
func NewIzipayGateway(cfg Config, logger *logrus.Logger) *IzipayGateway {
	g := &IzipayGateway{
		config: cfg,
		mock:   !cfg.configured(),
		logger: logger,
		client: newHTTPClient(),
	}
	if g.mock {
		logger.WithField("gateway", IzipayName).Warn("⚠️  Payment gateway running in MOCK mode - no real charges will be made")
	}
	return g
}

func (g *IzipayGateway) Name() string { return IzipayName }
func (g *IzipayGateway) IsMock() bool { return g.mock }

// CreatePaymentLink creates a payment order and returns its hosted page
func (g *IzipayGateway) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*Link, error) {
	if g.mock {
		return mockLink(IzipayName), nil
	}

	body := izipayOrderRequest{
		Amount:      req.Amount.Shift(2).Round(0).IntPart(),
		Currency:    req.Currency,
		OrderID:     req.TransactionID,
		Channel:     map[string]string{"channelType": "URL"},
		IPNURL:      g.config.NotificationURL,
		ReturnURL:   g.config.ReturnURL,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.CustomerEmail != "" || req.CustomerPhone != "" {
		body.Customer = map[string]string{"email": req.CustomerEmail, "phone": req.CustomerPhone}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(g.config.APIBaseURL, "/") + "/api-payment/V4/Charge/CreatePaymentOrder"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+g.config.AccessToken)

	g.logger.WithFields(logrus.Fields{
		"gateway":        IzipayName,
		"transaction_id": req.TransactionID,
		"amount":         body.Amount,
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
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var order izipayOrderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if order.Status != "SUCCESS" {
		return nil, fmt.Errorf("payment link creation failed: %s", order.Answer.ErrorMessage)
	}

	return &Link{PaymentURL: order.Answer.PaymentURL, TransactionID: order.Answer.PaymentOrderID}, nil
}

// VerifySignature checks a base64 HMAC-SHA256 of the raw payload
func (g *IzipayGateway) VerifySignature(payload []byte, signature string) bool {
	if g.mock {
		return true
	}
	return verifyBase64(payload, signature, g.config.WebhookSecret)
}

// ProcessWebhook verifies and normalizes a notification
func (g *IzipayGateway) ProcessWebhook(payload []byte, signature string) *WebhookEvent {
	if !g.VerifySignature(payload, signature) {
		return rejected("invalid signature")
	}

	var hook IzipayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return rejected("unparsable payload")
	}
	if hook.PaymentOrderID == "" {
		return rejected("missing payment order id")
	}

	status := MapIzipayStatus(hook.OrderStatus)
	if g.mock {
		status = StatusCompleted
	}
	return &WebhookEvent{
		Success:       true,
		TransactionID: hook.PaymentOrderID,
		Status:        status,
		RawStatus:     hook.OrderStatus,
	}
}

// MapIzipayStatus normalizes an Izipay order status. Unknown values map to PENDING.
func MapIzipayStatus(raw string) Status {
	if status, ok := izipayStatuses[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusPending
}
