// Package webhook turns provider notifications into reconciliation requests
// and keeps a journal of every delivery.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ProviderMercadoPago = "mercadopago"

	ReasonInvalidSignature = "invalid_signature"
)

var ErrInvalidSignature = errors.New("invalid_signature")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Engine     *reconcile.Engine
	Cfg        config.Config
	Clock      clock.Clock
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	engine     *reconcile.Engine
	secret     string
	clock      clock.Clock
	obsMetrics *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		repo:       p.Repo,
		engine:     p.Engine,
		secret:     strings.TrimSpace(p.Cfg.MercadoPago.WebhookSecret),
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest verifies, journals and reconciles one delivery. Only storage
// failures during settlement are returned as errors.
func (s *Service) Ingest(ctx context.Context, body []byte, query url.Values, headers http.Header) (reconcile.Result, error) {
	payload := decodeBody(body)
	n := Extract(payload, query)

	s.obsMetrics.RecordWebhook(ctx, ProviderMercadoPago, n.Topic)

	if s.secret != "" {
		dataID := query.Get("data.id")
		if dataID == "" {
			dataID = nestedString(payload, "data", "id")
		}
		if err := Verify(s.secret, headers, dataID); err != nil {
			s.log.Warn("webhook signature rejected", zap.String("topic", n.Topic), zap.Error(err))
			return reconcile.Result{OK: false, Reason: ReasonInvalidSignature}, nil
		}
	}

	dedupKey := DedupKey(n, body)
	s.journal(ctx, n, body, dedupKey)

	res, err := s.engine.Reconcile(ctx, n)
	if jerr := s.repo.SetNotificationOutcome(ctx, s.db, dedupKey, res.Label()); jerr != nil {
		s.log.Warn("webhook journal outcome not stored", zap.Error(jerr))
	}
	return res, err
}

func (s *Service) journal(ctx context.Context, n reconcile.Notification, body []byte, dedupKey string) {
	now := s.clock.Now()
	err := s.repo.RecordNotification(ctx, s.db, &domain.Notification{
		ID:                ulid.Make().String(),
		Provider:          ProviderMercadoPago,
		DedupKey:          dedupKey,
		Topic:             n.Topic,
		PaymentID:         n.PaymentID,
		ExternalReference: n.ExternalReference,
		Payload:           domain.RawJSON(body),
		ReceivedAt:        now,
		UpdatedAt:         now,
	})
	if err != nil {
		s.log.Warn("webhook journal write failed", zap.String("topic", n.Topic), zap.Error(err))
	}
}

// Extract reads the identifiers of a notification from its body, falling
// back to query parameters for fields the body lacks.
func Extract(payload map[string]any, query url.Values) reconcile.Notification {
	if payload == nil {
		payload = map[string]any{}
	}
	topic := strings.ToLower(strings.TrimSpace(firstNonEmpty(
		stringField(payload, "type"),
		stringField(payload, "topic"),
		query.Get("type"),
		query.Get("topic"),
	)))

	dataID := firstNonEmpty(nestedString(payload, "data", "id"), query.Get("data.id"))
	var paymentID string
	if dataID != "" {
		paymentID = dataID
	} else if strings.HasPrefix(topic, "payment") {
		paymentID = firstNonEmpty(stringField(payload, "id"), query.Get("id"))
	}

	return reconcile.Notification{
		Topic:     topic,
		PaymentID: paymentID,
		PreferenceID: firstNonEmpty(
			stringField(payload, "preference_id"),
			nestedString(payload, "data", "preference_id"),
		),
		ExternalReference: firstNonEmpty(
			stringField(payload, "external_reference"),
			nestedString(payload, "data", "external_reference"),
		),
		Payload: payload,
	}
}

// Verify checks the x-signature header: ts=<unix>,v1=<hex hmac-sha256> over
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func Verify(secret string, headers http.Header, dataID string) error {
	header := strings.TrimSpace(headers.Get("x-signature"))
	if header == "" {
		return ErrInvalidSignature
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(Manifest(dataID, headers.Get("x-request-id"), ts)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Manifest builds the signed string; empty parts are left out.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		fmt.Fprintf(&b, "id:%s;", strings.ToLower(dataID))
	}
	if requestID != "" {
		fmt.Fprintf(&b, "request-id:%s;", requestID)
	}
	fmt.Fprintf(&b, "ts:%s;", ts)
	return b.String()
}

// DedupKey identifies redeliveries of the same notification.
func DedupKey(n reconcile.Notification, body []byte) string {
	h := sha256.New()
	if n.PaymentID == "" && n.PreferenceID == "" && n.ExternalReference == "" {
		_, _ = h.Write(body)
	} else {
		fmt.Fprintf(h, "%s|%s|%s|%s", n.Topic, n.PaymentID, n.PreferenceID, n.ExternalReference)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func decodeBody(body []byte) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func nestedString(m map[string]any, parent, key string) string {
	child, ok := m[parent].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(child, key)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
