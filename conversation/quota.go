package conversation

import (
	"fmt"
	"time"
)

const (
	DefaultQuotaLimit  = 5
	DefaultQuotaWindow = 24 * time.Hour
)

// QuotaGuard limits how many groups one owner may have created within a
// trailing window. Groups dissolved or handed over no longer count.
type QuotaGuard struct {
	limit  int
	window time.Duration
}

func NewQuotaGuard(limit int, window time.Duration) *QuotaGuard {
	if limit <= 0 {
		limit = DefaultQuotaLimit
	}
	if window <= 0 {
		window = DefaultQuotaWindow
	}
	return &QuotaGuard{limit: limit, window: window}
}

// Check fails with ErrQuotaExceeded once the owner already holds limit
// groups created after now-window. Callers hold the owner lock.
func (q *QuotaGuard) Check(tx Tx, ownerID string, now time.Time) error {
	n, err := tx.CountOwnedSince(ownerID, now.Add(-q.window))
	if err != nil {
		return fmt.Errorf("count owned groups: %w", err)
	}
	if n >= q.limit {
		return ErrQuotaExceeded.Withf("%d groups created in the last %s", n, q.window)
	}
	return nil
}
