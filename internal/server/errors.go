package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"github.com/smallbiznis/banca/internal/receipt"
	"github.com/smallbiznis/banca/internal/salesreport"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels is checked in order; the first match names the code.
var validationSentinels = []error{
	ErrInvalidRequest,
	orderdomain.ErrEmptyItems,
	orderdomain.ErrInvalidItem,
	orderdomain.ErrInvalidSKU,
	orderdomain.ErrInsufficientStock,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidTransition,
	orderdomain.ErrInvalidID,
	catalogdomain.ErrInvalidID,
	catalogdomain.ErrInvalidSKU,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidStock,
	paymentdomain.ErrInvalidOrderID,
	paymentdomain.ErrAmountBelowMinimum,
	dashboarddomain.ErrInvalidID,
	dashboarddomain.ErrInvalidUsername,
	dashboarddomain.ErrInvalidPassword,
	dashboarddomain.ErrInvalidRoute,
	salesreport.ErrInvalidRange,
}

var validationFields = map[string]string{
	"empty_items":               "items",
	"invalid_item":              "items",
	"invalid_sku":               "items",
	"insufficient_stock":        "items",
	"invalid_status_transition": "status",
	"invalid_order_id":          "order_id",
	"invalid_user_id":           "id",
	"amount_below_minimum":      "total",
	"invalid_range":             "days",
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code, err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, dashboarddomain.ErrInvalidCredentials),
		errors.Is(err, dashboarddomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, dashboarddomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_unavailable",
			Message: "payment provider unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request log with the mapped type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrPaymentInProgress),
		errors.Is(err, paymentdomain.ErrOrderAlreadyPaid),
		errors.Is(err, catalogdomain.ErrDuplicateSKU),
		errors.Is(err, catalogdomain.ErrDuplicateName),
		errors.Is(err, dashboarddomain.ErrUserExists),
		errors.Is(err, salesreport.ErrResetInProgress):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	for _, sentinel := range []error{
		paymentdomain.ErrPaymentInProgress,
		paymentdomain.ErrOrderAlreadyPaid,
		catalogdomain.ErrDuplicateSKU,
		catalogdomain.ErrDuplicateName,
		dashboarddomain.ErrUserExists,
		salesreport.ErrResetInProgress,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrOrderNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, dashboarddomain.ErrUserNotFound),
		errors.Is(err, receipt.ErrEmptyOrder),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// validationErrorMessage keeps the detail of typed errors such as a stock
// shortage for one sku.
func validationErrorMessage(code string, err error) string {
	var stockErr *orderdomain.StockError
	var lineErr *orderdomain.LineError
	var transitionErr *orderdomain.TransitionError
	switch {
	case errors.As(err, &stockErr), errors.As(err, &lineErr), errors.As(err, &transitionErr):
		return err.Error()
	case code == "invalid_request":
		return "invalid request"
	case code == "amount_below_minimum":
		return "order total is below the minimum chargeable amount"
	default:
		return "invalid value"
	}
}
