// Package usage enforces the rate limiting policies and records terminal
// processing attempts. Two policies share one store: a per-user daily quota
// for regular transcriptions, and a use-once policy keyed by a composite
// context id for /retry requests.
package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlexYaroshenko/voicescribe/internal/store"
)

const (
	// defaultContextID scopes usages counted against the daily quota.
	defaultContextID = ""

	retentionTime   = 7 * 24 * time.Hour
	cleanupInterval = time.Hour
)

// Calendar days are compared in a fixed timezone so the quota window does not
// depend on where a request happens to be handled.
var quotaTimezone = time.UTC

// RetryContextID builds the composite context id for a relocalized retry.
func RetryContextID(uniqueFileID, locale string) string {
	return fmt.Sprintf("relocalize-%s-%s", uniqueFileID, locale)
}

// Request carries the bits of the inbound message the tracker needs.
type Request struct {
	UserID int64
	Date   time.Time
}

type Tracker struct {
	store      store.UsageStore
	dailyLimit int
	log        *zap.SugaredLogger

	mu          sync.Mutex
	lastCleanup time.Time
}

func NewTracker(s store.UsageStore, dailyLimit int, log *zap.SugaredLogger) *Tracker {
	return &Tracker{store: s, dailyLimit: dailyLimit, log: log}
}

// GetConflict returns the usage that violates a policy for the given request,
// or nil. The daily limit is evaluated first; the use-once retry policy only
// applies when a locale was requested.
func (t *Tracker) GetConflict(ctx context.Context, userID int64, atTime time.Time, uniqueFileID, locale string) (*store.Usage, error) {
	from, to := dayBounds(atTime)
	usages, err := t.store.ListUsages(ctx, userID, defaultContextID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	if len(usages) >= t.dailyLimit {
		u := usages[len(usages)-1]
		return &u, nil
	}

	if locale == "" {
		return nil, nil
	}

	u, err := t.store.GetUsageByContext(ctx, userID, RetryContextID(uniqueFileID, locale))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retry usage: %w", err)
	}
	return &u, nil
}

// Track appends exactly one usage for a terminal outcome. Callers invoke it at
// most once per update, and only for outcomes that count toward the quota.
// Housekeeping is kicked off concurrently and never blocks the reply path.
func (t *Tracker) Track(ctx context.Context, req Request, responseID, uniqueFileID, locale string) error {
	go t.housekeep()

	contextID := defaultContextID
	if locale != "" {
		contextID = RetryContextID(uniqueFileID, locale)
	}
	err := t.store.AddUsage(ctx, store.Usage{
		ContextID:   contextID,
		UserID:      req.UserID,
		AtTime:      req.Date,
		ResponseID:  responseID,
		ReferenceID: uniqueFileID,
	})
	if err != nil {
		return fmt.Errorf("add usage: %w", err)
	}
	return nil
}

// housekeep purges quota usages older than the retention window, at most once
// per rolling hour.
func (t *Tracker) housekeep() {
	t.mu.Lock()
	now := time.Now()
	if !t.lastCleanup.IsZero() && now.Sub(t.lastCleanup) < cleanupInterval {
		t.mu.Unlock()
		return
	}
	t.lastCleanup = now
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dropped, err := t.store.DeleteUsagesBefore(ctx, defaultContextID, now.Add(-retentionTime))
	if err != nil {
		t.log.Warnw("usage housekeeping failed", "error", err)
		return
	}
	t.log.Infow("usage housekeeping done", "dropped", dropped)
}

func dayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(quotaTimezone)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, quotaTimezone)
	return from, from.Add(24 * time.Hour)
}
