package cashback

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const DefaultExpirationDays = 30

// IsAvailable reports whether g can still be redeemed at now.
func IsAvailable(g domain.CashbackGrant, now time.Time) bool {
	if g.IsUsed {
		return false
	}
	return g.ExpirationDate == nil || g.ExpirationDate.After(now)
}

// Available sums the redeemable grants of customerID.
func Available(grants []domain.CashbackGrant, customerID string, now time.Time) int64 {
	var total int64
	for _, g := range grants {
		if g.CustomerID != customerID || !IsAvailable(g, now) {
			continue
		}
		if g.AmountCents > 0 {
			total += g.AmountCents
		}
	}
	return total
}

func Balance(grants []domain.CashbackGrant, customerID string, now time.Time) domain.CashbackBalance {
	balance := domain.CashbackBalance{CustomerID: customerID}
	for _, g := range grants {
		if g.CustomerID != customerID || !IsAvailable(g, now) {
			continue
		}
		balance.ActiveGrants++
		if g.AmountCents > 0 {
			balance.AvailableCents += g.AmountCents
		}
	}
	return balance
}

// Amount computes what rule pays for an order total, before the
// min-spend check.
func Amount(rule domain.CashbackRule, totalCents int64) int64 {
	var amount int64
	switch rule.Calculation {
	case domain.CashbackPercentage:
		amount = decimal.NewFromInt(totalCents).
			Mul(decimal.NewFromFloat(rule.Percent)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case domain.CashbackFixed:
		amount = rule.FixedCents
	}
	if rule.MaxCashbackCents > 0 && amount > rule.MaxCashbackCents {
		amount = rule.MaxCashbackCents
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// FromRule builds the grant an active rule issues for a delivered order.
func FromRule(rule domain.CashbackRule, order domain.Order, now time.Time) (domain.CashbackGrant, bool) {
	if !rule.Active || order.CustomerID == "" {
		return domain.CashbackGrant{}, false
	}
	total := order.Total()
	if total < rule.MinSpendCents {
		return domain.CashbackGrant{}, false
	}
	amount := Amount(rule, total)
	if amount <= 0 {
		return domain.CashbackGrant{}, false
	}

	days := rule.ExpirationDays
	if days <= 0 {
		days = DefaultExpirationDays
	}
	expires := now.AddDate(0, 0, days)
	return domain.CashbackGrant{
		CustomerID:     order.CustomerID,
		AmountCents:    amount,
		Reason:         fmt.Sprintf("Cashback: %s", rule.Name),
		OrderID:        order.ID,
		RuleID:         rule.ID,
		ExpirationDate: &expires,
		CreatedAt:      now,
	}, true
}
