package closing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/lifecycle"
)

const DateLayout = "2006-01-02"

// Plan is the partition of orders a daily close works on.
type Plan struct {
	Day     time.Time
	Next    time.Time
	Todays  []domain.Order
	Pending []domain.Order
}

// StartOfDay is local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Window returns [day, next) for the local day containing now.
func Window(now time.Time, loc *time.Location) (time.Time, time.Time) {
	day := StartOfDay(now, loc)
	return day, day.AddDate(0, 0, 1)
}

// PlanDay selects today's orders and, among them, the ones still open.
func PlanDay(orders []domain.Order, now time.Time, loc *time.Location) Plan {
	day, next := Window(now, loc)
	plan := Plan{Day: day, Next: next}
	for _, o := range orders {
		if o.Timestamp.Before(day) || !o.Timestamp.Before(next) {
			continue
		}
		plan.Todays = append(plan.Todays, o)
		if lifecycle.CanForceDeliver(o.Status) {
			plan.Pending = append(plan.Pending, o)
		}
	}
	return plan
}

// Summarize builds the report for plan. Revenue covers every order of the
// day whatever its status, so deliveries made before the close still count.
func Summarize(plan Plan, now time.Time) domain.DailyReport {
	report := domain.DailyReport{
		Date:                   plan.Day.Format(DateLayout),
		TotalOrders:            len(plan.Todays),
		PendingOrdersProcessed: len(plan.Pending),
		Timestamp:              now,
	}
	for _, o := range plan.Todays {
		report.TotalRevenueCents += o.Total()
		report.TotalItems += o.ItemCount()
	}
	report.AverageTicketCents = AverageCents(report.TotalRevenueCents, report.TotalOrders)
	return report
}

// Status describes what a close would do right now without doing it. A
// close is only offered while some of today's orders are still open.
func Status(plan Plan) domain.TodayCloseStatus {
	status := domain.TodayCloseStatus{
		Date:          plan.Day.Format(DateLayout),
		TotalOrders:   len(plan.Todays),
		PendingOrders: len(plan.Pending),
		CanClose:      len(plan.Pending) > 0,
	}
	for _, o := range plan.Todays {
		status.TotalRevenueCents += o.Total()
	}
	return status
}

// AverageCents is total/count rounded half away from zero; 0 when count is 0.
func AverageCents(total int64, count int) int64 {
	if count <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(count))).Round(0).IntPart()
}
