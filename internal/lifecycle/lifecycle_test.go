package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusNew, domain.OrderStatusPreparing, true},
		{domain.OrderStatusPreparing, domain.OrderStatusReady, true},
		{domain.OrderStatusReady, domain.OrderStatusDelivered, true},
		{domain.OrderStatusNew, domain.OrderStatusCanceled, true},
		{domain.OrderStatusReady, domain.OrderStatusCanceled, true},
		{domain.OrderStatusNew, domain.OrderStatusDelivered, false},
		{domain.OrderStatusNew, domain.OrderStatusReady, false},
		{domain.OrderStatusReady, domain.OrderStatusPreparing, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCanceled, false},
		{domain.OrderStatusCanceled, domain.OrderStatusNew, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestForceDeliverSkipsTerminal(t *testing.T) {
	for _, s := range NonTerminal() {
		assert.True(t, CanForceDeliver(s))
	}
	assert.False(t, CanForceDeliver(domain.OrderStatusDelivered))
	assert.False(t, CanForceDeliver(domain.OrderStatusCanceled))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusNew, domain.OrderStatusPreparing, domain.OrderStatusReady,
		domain.OrderStatusDelivered, domain.OrderStatusCanceled,
	}
	for _, to := range all {
		assert.False(t, CanTransition(domain.OrderStatusDelivered, to))
		assert.False(t, CanTransition(domain.OrderStatusCanceled, to))
	}
}
