package billing

import (
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
)

// Window is the validity period a successful payment produces.
type Window struct {
	Start   time.Time
	End     time.Time
	Renewal bool
}

// NextWindow computes the subscription window after a successful payment.
// wasActive must be read under the payment row lock. A renewal extends from
// the later of the current end date and now; the start date only changes if
// it was never set. Bonus days are added on top of the period.
func NextWindow(sub *models.Subscription, wasActive bool, periodMonths int, now time.Time, extraDays int) Window {
	if periodMonths <= 0 {
		periodMonths = 1
	}
	if extraDays < 0 {
		extraDays = 0
	}

	if wasActive {
		base := now
		if sub.EndDate != nil && sub.EndDate.After(now) {
			base = *sub.EndDate
		}
		start := now
		if sub.StartDate != nil {
			start = *sub.StartDate
		}
		return Window{
			Start:   start,
			End:     base.AddDate(0, periodMonths, extraDays),
			Renewal: true,
		}
	}

	return Window{
		Start: now,
		End:   now.AddDate(0, periodMonths, extraDays),
	}
}

// Apply writes the window onto the subscription and marks it active.
func (w Window) Apply(sub *models.Subscription) {
	start, end := w.Start, w.End
	sub.StartDate = &start
	sub.EndDate = &end
	sub.Status = models.SubscriptionStatusActive
}
