// Package lifecycle encodes the order status machine:
//
//	NEW -> PREPARING -> READY -> DELIVERED
//	NEW | PREPARING | READY -> CANCELED
//
// DELIVERED and CANCELED are terminal. The daily close may force any
// non-terminal order straight to DELIVERED.
package lifecycle

import "github.com/MrKroemer/BarApp-WPA-Web/internal/domain"

var adjacency = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusNew:       {domain.OrderStatusPreparing, domain.OrderStatusCanceled},
	domain.OrderStatusPreparing: {domain.OrderStatusReady, domain.OrderStatusCanceled},
	domain.OrderStatusReady:     {domain.OrderStatusDelivered, domain.OrderStatusCanceled},
}

// CanTransition reports whether staff may move an order from -> to.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range adjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanForceDeliver reports whether the daily close may deliver an order in status from.
func CanForceDeliver(from domain.OrderStatus) bool {
	return !from.IsTerminal() && from != ""
}

func NonTerminal() []domain.OrderStatus {
	return []domain.OrderStatus{domain.OrderStatusNew, domain.OrderStatusPreparing, domain.OrderStatusReady}
}

