package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProviderClient is the boundary to the payment provider. It is constructed
// once at start-up and injected; tests substitute an in-memory fake.
type ProviderClient interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	FetchPayment(ctx context.Context, paymentID string) (*ProviderPayment, error)
	// SearchMerchantOrder returns nil, nil when the provider has no matching order.
	SearchMerchantOrder(ctx context.Context, query MerchantOrderQuery) (*MerchantOrder, error)
}

type PreferenceItem struct {
	Title      string
	Quantity   int
	CurrencyID string
	UnitPrice  decimal.Decimal
}

type PreferenceRequest struct {
	Items                []PreferenceItem
	ExternalReference    string
	SuccessURL           string
	PendingURL           string
	FailureURL           string
	NotificationURL      string
	StatementDescriptor  string
	ExcludedPaymentTypes []string
	DefaultMethod        string
	BinaryMode           bool
	IdempotencyKey       string
}

type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// CheckoutURL prefers the production checkout link.
func (p Preference) CheckoutURL() string {
	if p.InitPoint != "" {
		return p.InitPoint
	}
	return p.SandboxInitPoint
}

type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type ChargeRequest struct {
	Amount            decimal.Decimal
	Description       string
	ExternalReference string
	NotificationURL   string
	Payer             Payer
	IdempotencyKey    string
}

type Charge struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail,omitempty"`
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
	TicketURL    string `json:"ticket_url,omitempty"`
	Raw          []byte `json:"-"`
}

type ProviderPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	Raw               []byte
}

func (p ProviderPayment) Approved() bool {
	return p.Status == StatusApproved
}

type MerchantOrderQuery struct {
	PreferenceID      string
	ExternalReference string
}

type MerchantOrderPayment struct {
	ID     string
	Status string
}

type MerchantOrder struct {
	ID          string
	OrderStatus string
	Payments    []MerchantOrderPayment
	Raw         []byte
}

// Paid reports whether the merchant order proves payment.
func (m MerchantOrder) Paid() bool {
	if m.OrderStatus == "paid" || m.OrderStatus == "closed" {
		return true
	}
	for _, p := range m.Payments {
		if p.Status == StatusApproved {
			return true
		}
	}
	return false
}

var ErrProviderUnavailable = errors.New("provider_unavailable")

// ProviderError carries the provider's HTTP status and message and matches ErrProviderUnavailable.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}
