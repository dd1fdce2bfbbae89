package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/observability/tracing"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 8 * time.Second
	maxBodyBytes   = 1 << 20
)

var ErrMissingAccessToken = errors.New("mercadopago_access_token_missing")

// Client talks to the Mercado Pago REST API.
type Client struct {
	baseURL     string
	accessToken string
	timeout     time.Duration
	http        *http.Client
	log         *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) domain.ProviderClient {
	return NewClient(cfg.MercadoPago, nil, log)
}

func NewClient(cfg config.MercadoPagoConfig, httpClient *http.Client, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		timeout:     timeout,
		http:        tracing.WrapHTTPClient(httpClient, "mercadopago"),
		log:         log.Named("mercadopago"),
	}
}

type preferenceBody struct {
	Items               []preferenceItem        `json:"items"`
	ExternalReference   string                  `json:"external_reference"`
	BackURLs            map[string]string       `json:"back_urls,omitempty"`
	AutoReturn          string                  `json:"auto_return,omitempty"`
	NotificationURL     string                  `json:"notification_url,omitempty"`
	StatementDescriptor string                  `json:"statement_descriptor,omitempty"`
	BinaryMode          bool                    `json:"binary_mode"`
	PaymentMethods      *paymentMethods         `json:"payment_methods,omitempty"`
}

// Amounts go on the wire as JSON numbers.
type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type paymentMethods struct {
	ExcludedPaymentTypes []idRef `json:"excluded_payment_types,omitempty"`
	DefaultPaymentMethod string  `json:"default_payment_method_id,omitempty"`
	Installments         int     `json:"installments,omitempty"`
}

type idRef struct {
	ID string `json:"id"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

func (c *Client) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	body := preferenceBody{
		ExternalReference:   req.ExternalReference,
		NotificationURL:     req.NotificationURL,
		StatementDescriptor: req.StatementDescriptor,
		BinaryMode:          req.BinaryMode,
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, preferenceItem{
			Title:      it.Title,
			Quantity:   it.Quantity,
			CurrencyID: it.CurrencyID,
			UnitPrice:  it.UnitPrice.Round(2).InexactFloat64(),
		})
	}
	if req.SuccessURL != "" || req.PendingURL != "" || req.FailureURL != "" {
		body.BackURLs = map[string]string{
			"success": req.SuccessURL,
			"pending": req.PendingURL,
			"failure": req.FailureURL,
		}
		if req.SuccessURL != "" {
			body.AutoReturn = "approved"
		}
	}
	if len(req.ExcludedPaymentTypes) > 0 || req.DefaultMethod != "" {
		pm := &paymentMethods{DefaultPaymentMethod: req.DefaultMethod, Installments: 1}
		for _, t := range req.ExcludedPaymentTypes {
			pm.ExcludedPaymentTypes = append(pm.ExcludedPaymentTypes, idRef{ID: t})
		}
		body.PaymentMethods = pm
	}

	var resp preferenceResponse
	if _, err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domain.ProviderError{StatusCode: http.StatusOK, Message: "preference_response_invalid"}
	}
	return &domain.Preference{
		ID:               resp.ID,
		InitPoint:        resp.InitPoint,
		SandboxInitPoint: resp.SandboxInitPoint,
	}, nil
}

type chargeBody struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Description       string       `json:"description"`
	PaymentMethodID   string       `json:"payment_method_id"`
	ExternalReference string       `json:"external_reference"`
	NotificationURL   string       `json:"notification_url,omitempty"`
	Payer             domain.Payer `json:"payer"`
}

type paymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	StatusDetail       string      `json:"status_detail"`
	ExternalReference  string      `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (c *Client) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	body := chargeBody{
		TransactionAmount: req.Amount.Round(2).InexactFloat64(),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Payer:             req.Payer,
	}

	var resp paymentResponse
	raw, err := c.do(ctx, http.MethodPost, "/v1/payments", body, req.IdempotencyKey, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domain.ProviderError{StatusCode: http.StatusOK, Message: "payment_response_invalid"}
	}
	td := resp.PointOfInteraction.TransactionData
	return &domain.Charge{
		ID:           resp.ID.String(),
		Status:       resp.Status,
		StatusDetail: resp.StatusDetail,
		QRCode:       td.QRCode,
		QRCodeBase64: td.QRCodeBase64,
		TicketURL:    td.TicketURL,
		Raw:          raw,
	}, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*domain.ProviderPayment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment_id_required")
	}
	var resp paymentResponse
	raw, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, "", &resp)
	if err != nil {
		return nil, err
	}
	id := resp.ID.String()
	if id == "" {
		id = paymentID
	}
	return &domain.ProviderPayment{
		ID:                id,
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		Raw:               raw,
	}, nil
}

type merchantOrderSearch struct {
	Elements []struct {
		ID          json.Number `json:"id"`
		OrderStatus string      `json:"order_status"`
		Payments    []struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"payments"`
	} `json:"elements"`
}

func (c *Client) SearchMerchantOrder(ctx context.Context, query domain.MerchantOrderQuery) (*domain.MerchantOrder, error) {
	values := url.Values{}
	switch {
	case query.PreferenceID != "":
		values.Set("preference_id", query.PreferenceID)
	case query.ExternalReference != "":
		values.Set("external_reference", query.ExternalReference)
	default:
		return nil, nil
	}

	var resp merchantOrderSearch
	raw, err := c.do(ctx, http.MethodGet, "/merchant_orders/search?"+values.Encode(), nil, "", &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Elements) == 0 {
		return nil, nil
	}
	el := resp.Elements[0]
	mo := &domain.MerchantOrder{
		ID:          el.ID.String(),
		OrderStatus: el.OrderStatus,
		Raw:         raw,
	}
	for _, p := range el.Payments {
		mo.Payments = append(mo.Payments, domain.MerchantOrderPayment{ID: p.ID.String(), Status: p.Status})
	}
	return mo, nil
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do performs one API call bounded by the client timeout and decodes a 2xx
// body into out. The raw body is returned for persistence.
func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) ([]byte, error) {
	if c.accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = strings.TrimSpace(apiErr.Error)
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("mercadopago request failed",
			zap.String("method", method),
			zap.String("path", strings.SplitN(path, "?", 2)[0]),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &domain.ProviderError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode mercadopago response: %w", err)
		}
	}
	return raw, nil
}
