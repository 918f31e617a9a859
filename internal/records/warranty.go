package records

import (
	"fmt"
	"time"
)

// AddMonths adds months to t by calendar month. When the day does not
// exist in the target month it is clamped to that month's last day, so
// Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// ExpirationDate returns purchaseDate + months as a calendar date.
func ExpirationDate(purchaseDate string, months int) (string, error) {
	p, err := time.Parse(DateLayout, purchaseDate)
	if err != nil {
		return "", fmt.Errorf("records: purchase_date: %w", err)
	}
	return AddMonths(p, months).Format(DateLayout), nil
}

// Today returns now as a calendar date in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// WarrantyStatusAt returns the status a newly computed warranty should
// carry: expired when the expiration date is already behind today.
func WarrantyStatusAt(expirationDate string, now time.Time) string {
	if expirationDate < Today(now) {
		return WarrantyExpired
	}
	return WarrantyActive
}

// EffectiveStatus is the status at now. An active warranty whose
// expiration date has passed reads as expired; other states are final.
func (w Warranty) EffectiveStatus(now time.Time) string {
	if w.Status == WarrantyActive || w.Status == "" {
		return WarrantyStatusAt(w.ExpirationDate, now)
	}
	return w.Status
}

// DaysLeft returns the whole days from now until expiration (negative when past).
func (w Warranty) DaysLeft(now time.Time) int {
	exp, err := time.ParseInLocation(DateLayout, w.ExpirationDate, now.Location())
	if err != nil {
		return 0
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return int(exp.Sub(today).Hours() / 24)
}

// DueSoon reports whether an effectively active warranty expires within days.
func (w Warranty) DueSoon(now time.Time, days int) bool {
	if w.EffectiveStatus(now) != WarrantyActive {
		return false
	}
	left := w.DaysLeft(now)
	return left >= 0 && left <= days
}

// Recompute refreshes the expiration date and, for active warranties,
// the status. It runs on creation and on every edit of the dates.
func (w *Warranty) Recompute(now time.Time) error {
	exp, err := ExpirationDate(w.PurchaseDate, w.WarrantyMonths)
	if err != nil {
		return err
	}
	w.ExpirationDate = exp
	if w.Status == "" || w.Status == WarrantyActive || w.Status == WarrantyExpired {
		w.Status = WarrantyStatusAt(exp, now)
	}
	return nil
}
