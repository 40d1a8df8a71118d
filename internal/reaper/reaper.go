// Package reaper reclaims sessions and command locks abandoned by disconnected
// clients. The hourly sweep frees command licenses held by stale sessions and
// expires abandoned handoff requests; the daily sweep is storage hygiene only.
package reaper

import (
	"context"
	"log"
	"time"

	"incident-command-plane/internal/audit"
	"incident-command-plane/internal/db"
	handoffrepo "incident-command-plane/internal/handoff/repository"
	incidentrepo "incident-command-plane/internal/incident/repository"
	sessionrepo "incident-command-plane/internal/session/repository"
)

const (
	// commandStaleAfter is the inactivity bar beyond which a commanding
	// session is presumed dead and its command lock reclaimed.
	commandStaleAfter = 2 * time.Hour
	// requestStaleAfter is the age at which a pending handoff request is
	// expired, same bar as command reclamation.
	requestStaleAfter = 2 * time.Hour
	// retentionWindow is the idle age beyond which any session is deleted by
	// the daily sweep, command state untouched.
	retentionWindow = 60 * 24 * time.Hour
	// dailyDeleteCap bounds deletions per daily run.
	dailyDeleteCap = 500
)

// Stats summarizes one sweep.
type Stats struct {
	CommandsReclaimed int
	SessionsDeleted   int
	RequestsExpired   int
}

// Reaper runs the two scheduled sweeps.
type Reaper struct {
	tx        db.TxRunner
	incidents func(db.Querier) incidentrepo.Repository
	sessions  func(db.Querier) sessionrepo.Repository
	requests  func(db.Querier) handoffrepo.Repository
	auditLog  audit.AuditLogger
	clock     func() time.Time
}

// New returns a reaper with default repository bindings.
func New(database *db.DB, auditLog audit.AuditLogger) *Reaper {
	return NewFromBindings(database,
		func(q db.Querier) incidentrepo.Repository { return incidentrepo.NewPostgresRepository(q) },
		func(q db.Querier) sessionrepo.Repository { return sessionrepo.NewPostgresRepository(q) },
		func(q db.Querier) handoffrepo.Repository { return handoffrepo.NewPostgresRepository(q) },
		auditLog)
}

// NewFromBindings returns a reaper over explicit repository bindings.
func NewFromBindings(tx db.TxRunner,
	incidents func(db.Querier) incidentrepo.Repository,
	sessions func(db.Querier) sessionrepo.Repository,
	requests func(db.Querier) handoffrepo.Repository,
	auditLog audit.AuditLogger) *Reaper {
	return &Reaper{
		tx:        tx,
		incidents: incidents,
		sessions:  sessions,
		requests:  requests,
		auditLog:  auditLog,
		clock:     time.Now,
	}
}

// HourlySweep reclaims command locks held by sessions inactive for more than
// the stale threshold: the incident's commander fields are cleared (releasing
// the license) and the stale session deleted, in one transaction. Stale
// sessions holding no command lock are deliberately left alone. The sweep is
// idempotent: a second run with no new stale sessions writes nothing.
func (r *Reaper) HourlySweep(ctx context.Context) (Stats, error) {
	var stats Stats
	now := r.clock().UTC()
	err := r.tx.WithTx(ctx, func(q db.Querier) error {
		stats = Stats{}
		incidents := r.incidents(q)
		sessions := r.sessions(q)

		stale, err := incidents.ListWithStaleCommander(ctx, now.Add(-commandStaleAfter))
		if err != nil {
			return err
		}
		for _, inc := range stale {
			// Capture before ClearCommander: the repository may hand back the
			// same struct it mutates, blanking the commander fields in place.
			sessionID := inc.CommanderSessionID
			if err := incidents.ClearCommander(ctx, inc.ID, now); err != nil {
				return err
			}
			if err := sessions.Delete(ctx, sessionID); err != nil {
				return err
			}
			stats.CommandsReclaimed++
			stats.SessionsDeleted++
			if r.auditLog != nil {
				r.auditLog.LogEvent(ctx, inc.TenantID, "", "command.reclaim", "incident",
					"stale session "+sessionID)
			}
		}

		expired, err := r.requests(q).ExpirePendingBefore(ctx, now.Add(-requestStaleAfter), now)
		if err != nil {
			return err
		}
		stats.RequestsExpired = expired
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.CommandsReclaimed > 0 || stats.RequestsExpired > 0 {
		log.Printf("reaper: hourly sweep reclaimed %d commands, expired %d requests",
			stats.CommandsReclaimed, stats.RequestsExpired)
	}
	return stats, nil
}

// DailySweep deletes sessions idle beyond the retention window, bounded to a
// fixed per-run cap. Command state on incidents is never touched here.
func (r *Reaper) DailySweep(ctx context.Context) (Stats, error) {
	var stats Stats
	now := r.clock().UTC()
	err := r.tx.WithTx(ctx, func(q db.Querier) error {
		n, err := r.sessions(q).DeleteLastActiveBefore(ctx, now.Add(-retentionWindow), dailyDeleteCap)
		if err != nil {
			return err
		}
		stats = Stats{SessionsDeleted: n}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.SessionsDeleted > 0 {
		log.Printf("reaper: daily sweep deleted %d sessions", stats.SessionsDeleted)
	}
	return stats, nil
}

// Run executes the hourly sweep on hourlyInterval and the daily sweep at
// dailyHour local time, until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, hourlyInterval time.Duration, dailyHour int) {
	hourly := time.NewTicker(hourlyInterval)
	defer hourly.Stop()

	daily := time.NewTimer(untilHour(r.clock(), dailyHour))
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hourly.C:
			if _, err := r.HourlySweep(ctx); err != nil {
				log.Printf("reaper: hourly sweep failed: %v", err)
			}
		case <-daily.C:
			if _, err := r.DailySweep(ctx); err != nil {
				log.Printf("reaper: daily sweep failed: %v", err)
			}
			daily.Reset(untilHour(r.clock(), dailyHour))
		}
	}
}

// untilHour returns the duration from now until the next occurrence of hour.
func untilHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
