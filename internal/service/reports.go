package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/closing"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/projection"
)

const defaultSalesWindowDays = 30

var errInvalidBound = errors.New("use RFC3339 or YYYY-MM-DD")

// SalesReport summarizes delivered orders between from and to. Both bounds
// accept RFC3339 or a local date (YYYY-MM-DD); a date as `to` covers that
// whole day. Missing bounds default to the last 30 days up to now.
func (s *Service) SalesReport(ctx context.Context, from, to string) (domain.SalesReport, error) {
	if _, err := authorize(ctx, access.ViewReports); err != nil {
		return domain.SalesReport{}, err
	}

	now := s.clock()
	end, err := s.parseReportBound(to, now, true)
	if err != nil {
		return domain.SalesReport{}, invalid("to", err.Error())
	}
	start, err := s.parseReportBound(from, end.AddDate(0, 0, -defaultSalesWindowDays), false)
	if err != nil {
		return domain.SalesReport{}, invalid("from", err.Error())
	}
	if start.After(end) {
		return domain.SalesReport{}, invalid("from", "must not be after to")
	}

	exclusiveEnd := end.Add(time.Nanosecond)
	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{
		Status: domain.OrderStatusDelivered,
		From:   &start,
		To:     &exclusiveEnd,
	})
	if err != nil {
		return domain.SalesReport{}, err
	}
	return projection.SalesReport(orders, start, end, s.loc), nil
}

func (s *Service) parseReportBound(raw string, fallback time.Time, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, s.loc)
	if err != nil {
		return time.Time{}, errInvalidBound
	}
	day = closing.StartOfDay(day, s.loc)
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}
