package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const (
	SyncAccepted  = "accepted"
	SyncDuplicate = "duplicate"
	SyncRejected  = "rejected"

	maxOfflineActions = 100
)

// SyncOffline replays actions queued by a client while it was offline.
// Each action carries a client-generated idempotency key; a key already
// applied is reported as duplicate with the resource it produced. A
// rejected action releases its key so the client can retry it later. Keys
// are scoped to the caller, so two users may reuse the same key.
func (s *Service) SyncOffline(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.OfflineSyncResponse{}, fmt.Errorf("sync offline: %w", errUnauthenticated)
	}
	if len(req.Actions) > maxOfflineActions {
		return domain.OfflineSyncResponse{}, invalid("actions", fmt.Sprintf("at most %d actions per envelope", maxOfflineActions))
	}

	resp := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Actions)),
	}
	for _, action := range req.Actions {
		resp.Statuses = append(resp.Statuses, s.replay(ctx, actor, action))
	}
	return resp, nil
}

func (s *Service) replay(ctx context.Context, actor domain.Actor, action domain.OfflineAction) domain.OfflineSyncStatus {
	clientKey := strings.TrimSpace(action.IdempotencyKey)
	status := domain.OfflineSyncStatus{IdempotencyKey: clientKey}
	if clientKey == "" {
		status.Status = SyncRejected
		status.Reason = "idempotency key required"
		return status
	}
	key := actor.UserID + "/" + clientKey

	claimed, resourceID, err := s.idem.Claim(ctx, key)
	if err != nil {
		status.Status = SyncRejected
		status.Reason = "idempotency store unavailable"
		s.log.WarnContext(ctx, "idempotency claim failed", "key", key, "error", err)
		return status
	}
	if !claimed {
		status.Status = SyncDuplicate
		status.ResourceID = resourceID
		return status
	}

	resourceID, err = s.apply(ctx, action)
	if err != nil {
		if releaseErr := s.idem.Release(ctx, key); releaseErr != nil {
			s.log.WarnContext(ctx, "idempotency release failed", "key", key, "error", releaseErr)
		}
		status.Status = SyncRejected
		status.Reason = err.Error()
		return status
	}
	if err := s.idem.Complete(ctx, key, resourceID); err != nil {
		s.log.WarnContext(ctx, "idempotency complete failed", "key", key, "error", err)
	}
	status.Status = SyncAccepted
	status.ResourceID = resourceID
	return status
}

func (s *Service) apply(ctx context.Context, action domain.OfflineAction) (string, error) {
	switch action.Kind {
	case domain.OfflineCreateOrder:
		if action.CreateOrder == nil {
			return "", invalid("create_order", "payload required")
		}
		order, err := s.CreateOrder(ctx, *action.CreateOrder)
		if err != nil {
			return "", err
		}
		return order.ID, nil
	case domain.OfflineUpdateStatus:
		if action.StatusUpdate == nil || action.StatusUpdate.OrderID == "" {
			return "", invalid("status_update", "order id required")
		}
		order, err := s.UpdateOrderStatus(ctx, action.StatusUpdate.OrderID, *action.StatusUpdate)
		if err != nil {
			return "", err
		}
		return order.ID, nil
	case domain.OfflineStockMovement:
		if action.StockMovement == nil {
			return "", invalid("stock_movement", "payload required")
		}
		resp, err := s.ApplyStockMovement(ctx, *action.StockMovement)
		if err != nil {
			return "", err
		}
		return resp.Movement.ID, nil
	}
	return "", invalid("kind", "unsupported action kind")
}
