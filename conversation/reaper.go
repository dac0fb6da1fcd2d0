package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reaper deletes groups left without members.
type Reaper struct {
	store  Store
	locker Locker
	log    *slog.Logger
}

func NewReaper(log *slog.Logger, store Store, locker Locker) *Reaper {
	return &Reaper{store: store, locker: locker, log: log}
}

// Reap deletes the group if it has no memberships left. It runs inside the
// transaction that removed the last membership, so no join can slip in
// between the count and the delete.
func (r *Reaper) Reap(tx Tx, groupID string) (bool, error) {
	n, err := tx.CountMemberships(groupID)
	if err != nil {
		return false, fmt.Errorf("count memberships: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := tx.DeleteGroup(groupID); err != nil {
		return false, fmt.Errorf("delete empty group: %w", err)
	}
	r.log.Info("Empty group reaped", "group_id", groupID)
	return true, nil
}

// Sweep visits every group under its lock and reaps the empty ones.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	var ids []string
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.GroupIDs()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}

	reaped := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reaped, err
		}
		ok, err := r.sweepOne(ctx, id)
		if err != nil {
			return reaped, err
		}
		if ok {
			reaped++
		}
	}
	return reaped, nil
}

func (r *Reaper) sweepOne(ctx context.Context, id string) (bool, error) {
	unlock, err := r.locker.Lock(ctx, groupLockKey(id))
	if err != nil {
		return false, fmt.Errorf("lock group %s: %w", id, err)
	}
	defer unlock()

	var reaped bool
	err = r.store.Update(ctx, func(tx Tx) error {
		g, err := tx.GroupByID(id)
		if err != nil || g == nil {
			return err
		}
		reaped, err = r.Reap(tx, id)
		return err
	})
	return reaped, err
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				r.log.Error("Sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.log.Info("Sweep finished", "reaped", n)
			}
		}
	}
}
