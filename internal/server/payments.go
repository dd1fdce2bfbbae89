package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/payment/reconcile"
	"go.uber.org/zap"
)

// orderReference is the body shape shared by the checkout endpoints.
// pedido_id is still sent by the legacy storefront.
type orderReference struct {
	OrderID  flexibleID           `json:"order_id"`
	PedidoID flexibleID           `json:"pedido_id"`
	ID       flexibleID           `json:"id"`
	Payer    *paymentdomain.Payer `json:"payer"`
}

// bindOrderReference reads the order id from the body, then the query.
// An empty or malformed body is not an error on its own.
func bindOrderReference(c *gin.Context) (orderReference, string) {
	var ref orderReference
	if raw, err := io.ReadAll(c.Request.Body); err == nil && len(strings.TrimSpace(string(raw))) > 0 {
		_ = json.Unmarshal(raw, &ref)
	}
	id := firstID(
		ref.OrderID.String(),
		ref.PedidoID.String(),
		ref.ID.String(),
		c.Query("order_id"),
		c.Query("id"),
	)
	return ref, id
}

func (s *Server) CreatePreference(c *gin.Context) {
	_, orderID := bindOrderReference(c)
	if orderID == "" {
		AbortWithError(c, newValidationError("order_id", "required", "order_id is required"))
		return
	}

	pref, err := s.paymentSvc.CreatePreference(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pref)
}

func (s *Server) CreatePixCharge(c *gin.Context) {
	ref, orderID := bindOrderReference(c)
	if orderID == "" {
		AbortWithError(c, newValidationError("order_id", "required", "order_id is required"))
		return
	}

	charge, err := s.paymentSvc.CreatePixCharge(c.Request.Context(), orderID, ref.Payer)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, charge)
}

// maxWebhookBody caps a notification body; provider payloads are a few KB.
const maxWebhookBody = 1 << 20

// HandlePaymentWebhook always answers 200 so the provider stops retrying a
// delivery we have already journaled.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		s.log.Warn("webhook body unreadable", zap.Int64("limit", maxWebhookBody), zap.Error(err))
		c.JSON(http.StatusOK, reconcile.Result{OK: false, Reason: "invalid_body"})
		return
	}

	res, err := s.webhooks.Ingest(c.Request.Context(), body, c.Request.URL.Query(), c.Request.Header)
	if err != nil {
		s.log.Error("webhook reconcile failed", zap.Error(err))
		if res.Reason == "" {
			res.Reason = reconcile.ReasonSettlementFailed
		}
		res.OK = false
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) SyncPayment(c *gin.Context) {
	_, orderID := bindOrderReference(c)
	if orderID == "" {
		AbortWithError(c, newValidationError("order_id", "required", "order_id is required"))
		return
	}

	res, err := s.reconciler.Resync(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

type paymentResponse struct {
	OrderID      string          `json:"order_id"`
	ProviderRef  string          `json:"provider_ref"`
	Status       string          `json:"status"`
	StatusDetail string          `json:"status_detail,omitempty"`
	CheckoutURL  string          `json:"checkout_url,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *Server) GetPayment(c *gin.Context) {
	record, err := s.paymentSvc.GetByOrderID(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{
		OrderID:      formatInt(record.OrderID),
		ProviderRef:  record.ProviderRef,
		Status:       record.Status,
		StatusDetail: record.StatusDetail,
		CheckoutURL:  record.CheckoutURL,
		Raw:          json.RawMessage(record.Raw),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	})
}
