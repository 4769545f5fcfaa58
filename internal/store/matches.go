package store

import (
	"context"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store/dbutil"
)

const matchesTable = "matches"

// MatchRun describes the run that produced a set of matches.
type MatchRun struct {
	RunID           string
	MatchingMethod  string
	RelaxationLevel string
}

// SaveMatches upserts matches keyed by (user, job). Rows of earlier runs for other jobs are left alone.
func (s *Store) SaveMatches(ctx context.Context, email string, run MatchRun, matches []model.MatchResult) error {
	if len(matches) == 0 {
		return nil
	}

	const query = `
		INSERT INTO matches (user_email, job_hash, match_score, match_reason, provenance,
			matching_method, relaxation_level, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_email, job_hash) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			match_reason = EXCLUDED.match_reason,
			provenance = EXCLUDED.provenance,
			matching_method = EXCLUDED.matching_method,
			relaxation_level = EXCLUDED.relaxation_level,
			run_id = EXCLUDED.run_id,
			created_at = EXCLUDED.created_at
	`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx, email, m.Job.JobHash, m.MatchScore, m.MatchReason,
			string(m.Provenance), run.MatchingMethod, run.RelaxationLevel, run.RunID); err != nil {
			return fmt.Errorf("upsert match %s: %w", m.Job.JobHash, err)
		}
	}

	return tx.Commit()
}

// SentJobHashes lists the jobs already matched for a user, in hash order.
func (s *Store) SentJobHashes(ctx context.Context, email string) ([]string, error) {
	where := map[string]interface{}{"user_email": email, "_orderby": "job_hash asc"}
	sqlStr, args, err := builder.BuildSelect(matchesTable, where, []string{"job_hash"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	var hashes []string
	if err := s.db.SelectContext(ctx, &hashes, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select sent jobs: %w", err)
	}
	return hashes, nil
}
