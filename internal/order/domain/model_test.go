package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusAwaitingPayment, StatusPaid))
	assert.True(t, CanTransition(StatusAwaitingPayment, StatusCancelled))
	assert.False(t, CanTransition(StatusAwaitingPayment, StatusReady))
	assert.True(t, CanTransition(StatusPaid, StatusDone))
	assert.True(t, CanTransition(StatusProducing, StatusReady))
	assert.False(t, CanTransition(StatusReady, StatusPreparing))
	assert.False(t, CanTransition(StatusDone, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusPaid))
	assert.True(t, CanTransition(StatusDone, StatusDone))
	assert.False(t, CanTransition("unknown", "unknown"))
}
