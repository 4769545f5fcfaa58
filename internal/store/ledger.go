package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store/dbutil"
)

const ledgerTable = "send_ledger"

var ledgerColumns = []string{"user_email", "tier", "week_start", "sends_used", "jobs_sent", "last_send_date"}

// LatestLedger returns the most recent ledger entry of the user, or nil when none exists.
func (s *Store) LatestLedger(ctx context.Context, email string) (*model.SendLedgerEntry, error) {
	where := map[string]interface{}{
		"user_email": email,
		"_orderby":   "week_start desc",
		"_limit":     []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect(ledgerTable, where, ledgerColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	var entry model.SendLedgerEntry
	if err := s.db.GetContext(ctx, &entry, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	return &entry, nil
}

// UpsertLedger writes the entry for its (user, week).
func (s *Store) UpsertLedger(ctx context.Context, entry model.SendLedgerEntry) error {
	const query = `
		INSERT INTO send_ledger (user_email, tier, week_start, sends_used, jobs_sent, last_send_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_email, week_start) DO UPDATE SET
			tier = EXCLUDED.tier,
			sends_used = EXCLUDED.sends_used,
			jobs_sent = EXCLUDED.jobs_sent,
			last_send_date = EXCLUDED.last_send_date
	`
	var last interface{}
	if entry.LastSendDate != nil {
		last = entry.LastSendDate.UTC()
	}
	week := entry.WeekStart.UTC().Truncate(24 * time.Hour)
	if _, err := s.db.ExecContext(ctx, query, entry.Email, string(entry.Tier), week,
		entry.SendsUsed, entry.JobsSent, last); err != nil {
		return fmt.Errorf("upsert ledger: %w", err)
	}
	return nil
}
