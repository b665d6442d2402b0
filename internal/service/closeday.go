package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/closing"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/lifecycle"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

// CloseDay delivers every open order of the local day, builds the daily
// report and appends it to the report history.
//
// Transitions are best effort: each pending order is tried independently
// with its own timeout and retries, and the close completes even when some
// of them fail. Failed orders are listed in the response and stay open.
//
// Once started, the sweep and the report append are detached from ctx
// cancellation and bounded by the close-day deadline instead, so a client
// that disconnects does not leave a half-delivered day without a report.
func (s *Service) CloseDay(ctx context.Context) (domain.CloseDayResponse, error) {
	if _, err := authorize(ctx, access.CloseDailyCash); err != nil {
		return domain.CloseDayResponse{}, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.closeDayDeadline)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "service.CloseDay")
	defer span.End()

	now := s.clock()
	plan, err := s.planDay(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load orders")
		return domain.CloseDayResponse{}, err
	}
	span.SetAttributes(
		attribute.String("close.date", plan.Day.Format(closing.DateLayout)),
		attribute.Int("close.orders", len(plan.Todays)),
		attribute.Int("close.pending", len(plan.Pending)),
	)

	outcomes := s.deliverPending(ctx, plan.Pending, now)
	failed := make([]string, 0)
	for _, outcome := range outcomes {
		if outcome.Outcome == domain.OutcomeFailed {
			failed = append(failed, outcome.OrderID)
		}
	}
	span.SetAttributes(attribute.Int("close.failed", len(failed)))

	report := closing.Summarize(plan, now)
	if err := s.reports.Append(ctx, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append report")
		return domain.CloseDayResponse{}, fmt.Errorf("append daily report: %w", err)
	}

	s.logAudit(ctx, "day_close", "daily_report", report.Date, fmt.Sprintf("orders=%d,pending=%d,failed=%d,revenue=%d", report.TotalOrders, report.PendingOrdersProcessed, len(failed), report.TotalRevenueCents))
	s.publish(ctx, events.Event{
		Type:       events.DayClosed,
		Key:        report.Date,
		Attributes: map[string]string{"failed": fmt.Sprint(len(failed))},
		Payload:    report,
	})
	s.notices.Add(notify.Owners, "cash", "Caixa fechado", fmt.Sprintf("%d pedidos, total %s", report.TotalOrders, formatCents(report.TotalRevenueCents)))
	if len(plan.Pending) > 0 {
		s.changed(ctx, feed.Orders)
	}

	return domain.CloseDayResponse{Report: report, Outcomes: outcomes, FailedOrderIDs: failed}, nil
}

// TodayCloseStatus previews the close of the current local day.
func (s *Service) TodayCloseStatus(ctx context.Context) (domain.TodayCloseStatus, error) {
	if _, err := authorize(ctx, access.ViewReports); err != nil {
		return domain.TodayCloseStatus{}, err
	}
	plan, err := s.planDay(ctx, s.clock())
	if err != nil {
		return domain.TodayCloseStatus{}, err
	}
	return closing.Status(plan), nil
}

// DailyReports returns the kept close reports, oldest first.
func (s *Service) DailyReports(ctx context.Context) ([]domain.DailyReport, error) {
	if _, err := authorize(ctx, access.ViewReports); err != nil {
		return nil, err
	}
	reports, err := s.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list daily reports: %w", err)
	}
	return reports, nil
}

func (s *Service) planDay(ctx context.Context, now time.Time) (closing.Plan, error) {
	day, next := closing.Window(now, s.loc)
	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{From: &day, To: &next})
	if err != nil {
		return closing.Plan{}, fmt.Errorf("list today's orders: %w", err)
	}
	return closing.PlanDay(orders, now, s.loc), nil
}

// deliverPending runs one forced delivery per order, at most
// closeDayConcurrency at a time. Outcomes keep the order of pending.
func (s *Service) deliverPending(ctx context.Context, pending []domain.Order, at time.Time) []domain.TransitionOutcome {
	outcomes := make([]domain.TransitionOutcome, len(pending))
	var g errgroup.Group
	g.SetLimit(s.closeDayConcurrency)
	for i, order := range pending {
		i, order := i, order
		g.Go(func() error {
			outcomes[i] = s.forceDeliver(ctx, order, at)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) forceDeliver(ctx context.Context, order domain.Order, at time.Time) domain.TransitionOutcome {
	ctx, span := s.tracer.Start(ctx, "service.forceDeliver", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.closeDayTimeout)
		defer cancel()
		_, err := s.repo.UpdateOrderStatus(attemptCtx, order.ID, lifecycle.NonTerminal(), domain.OrderStatusDelivered, at)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.closeDayMaxRetries)), ctx))
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err == nil {
		return domain.TransitionOutcome{OrderID: order.ID, Outcome: domain.OutcomeOK}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "force deliver")
	reason := err.Error()
	if errors.Is(err, store.ErrInvalidTransition) {
		reason = "already terminal"
	}
	s.log.WarnContext(ctx, "close day transition failed", "order_id", order.ID, "attempts", attempts, "error", err)
	return domain.TransitionOutcome{OrderID: order.ID, Outcome: domain.OutcomeFailed, Reason: reason}
}
