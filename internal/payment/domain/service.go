package domain

import (
	"context"
	"errors"
)

type Service interface {
	CreatePreference(ctx context.Context, orderID string) (*PreferenceResponse, error)
	CreatePixCharge(ctx context.Context, orderID string, payer *Payer) (*Charge, error)
	GetByOrderID(ctx context.Context, orderID string) (*PaymentRecord, error)
}

type PreferenceResponse struct {
	PreferenceID string `json:"preference_id"`
	InitPoint    string `json:"init_point"`
}

var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrAmountBelowMinimum = errors.New("amount_below_minimum")
	ErrPaymentInProgress  = errors.New("payment_in_progress")
	ErrOrderAlreadyPaid   = errors.New("order_already_paid")
)
