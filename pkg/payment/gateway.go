package payment

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the gateway-agnostic payment status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Config holds the credentials of one gateway. Empty credentials select mock
// mode once, at construction.
type Config struct {
	AccessToken     string
	WebhookSecret   string
	APIBaseURL      string
	NotificationURL string
	ReturnURL       string
}

func (c Config) configured() bool {
	return c.AccessToken != "" && c.WebhookSecret != ""
}

// LinkRequest describes the checkout to open at the gateway
type LinkRequest struct {
	TransactionID    string
	ReservationID    string
	BookingReference string
	Amount           decimal.Decimal
	Currency         string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	Description      string
	Metadata         map[string]string
}

// Link is a checkout created at the gateway
type Link struct {
	PaymentURL    string
	TransactionID string
}

// WebhookEvent is the normalized result of a gateway notification
type WebhookEvent struct {
	Success       bool
	TransactionID string
	Status        Status
	RawStatus     string
	Error         string
}

// Gateway is implemented by every payment provider adapter
type Gateway interface {
	Name() string
	IsMock() bool
	CreatePaymentLink(ctx context.Context, req *LinkRequest) (*Link, error)
	ProcessWebhook(payload []byte, signature string) *WebhookEvent
	VerifySignature(payload []byte, signature string) bool
}

func rejected(reason string) *WebhookEvent {
	return &WebhookEvent{Success: false, Status: StatusPending, Error: reason}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Registry resolves adapters by name
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// WithoutMocks drops adapters running in mock mode. Production registries
// are built from its result so an unconfigured gateway is not reachable.
func WithoutMocks(gateways ...Gateway) []Gateway {
	live := make([]Gateway, 0, len(gateways))
	for _, g := range gateways {
		if !g.IsMock() {
			live = append(live, g)
		}
	}
	return live
}

// Get returns the adapter registered under name
func (r *Registry) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[name]
	return g, ok
}

// Names lists registered adapters in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
