// Package fake is an in-memory payment provider for tests and local runs.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/banca/internal/payment/domain"
)

type Provider struct {
	mu sync.Mutex

	payments       map[string]domain.ProviderPayment
	merchantOrders map[string]domain.MerchantOrder
	errs           map[string]error
	seq            int

	Preferences []domain.PreferenceRequest
	Charges     []domain.ChargeRequest
	Calls       map[string]int
}

var _ domain.ProviderClient = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		payments:       map[string]domain.ProviderPayment{},
		merchantOrders: map[string]domain.MerchantOrder{},
		errs:           map[string]error{},
		Calls:          map[string]int{},
	}
}

// SetPayment registers the answer for FetchPayment(id).
func (p *Provider) SetPayment(payment domain.ProviderPayment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[payment.ID] = payment
}

// SetMerchantOrder registers the answer for a search by preference id or external reference.
func (p *Provider) SetMerchantOrder(key string, mo domain.MerchantOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merchantOrders[key] = mo
}

// FailOn makes the named method return err.
func (p *Provider) FailOn(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[method] = err
}

func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[method]
}

func (p *Provider) enter(method string) error {
	p.Calls[method]++
	return p.errs[method]
}

func (p *Provider) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreatePreference"); err != nil {
		return nil, err
	}
	p.seq++
	p.Preferences = append(p.Preferences, req)
	id := fmt.Sprintf("pref_%d", p.seq)
	return &domain.Preference{
		ID:        id,
		InitPoint: "https://checkout.example/" + id,
	}, nil
}

func (p *Provider) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreateCharge"); err != nil {
		return nil, err
	}
	p.seq++
	p.Charges = append(p.Charges, req)
	id := fmt.Sprintf("%d", 9000+p.seq)
	return &domain.Charge{
		ID:           id,
		Status:       "pending",
		StatusDetail: "pending_waiting_transfer",
		QRCode:       "00020126pix" + id,
		QRCodeBase64: "cXI=",
		TicketURL:    "https://checkout.example/pix/" + id,
		Raw:          []byte(`{"id":` + id + `,"status":"pending"}`),
	}, nil
}

func (p *Provider) FetchPayment(ctx context.Context, paymentID string) (*domain.ProviderPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("FetchPayment"); err != nil {
		return nil, err
	}
	payment, ok := p.payments[paymentID]
	if !ok {
		return nil, &domain.ProviderError{StatusCode: 404, Message: "payment not found"}
	}
	return &payment, nil
}

func (p *Provider) SearchMerchantOrder(ctx context.Context, query domain.MerchantOrderQuery) (*domain.MerchantOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("SearchMerchantOrder"); err != nil {
		return nil, err
	}
	key := query.PreferenceID
	if key == "" {
		key = query.ExternalReference
	}
	mo, ok := p.merchantOrders[key]
	if !ok {
		return nil, nil
	}
	return &mo, nil
}
