package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhysr01/jobping/internal/matching"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/sendconfig"
	"github.com/rhysr01/jobping/internal/store"
)

// Wednesday.
var now = time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*model.UserPreferences
	ledgers map[string]*model.SendLedgerEntry
	saved   map[string]store.MatchRun
	pool    []model.Job
	query   store.PoolQuery
	failFor string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*model.UserPreferences{},
		ledgers: map[string]*model.SendLedgerEntry{},
		saved:   map[string]store.MatchRun{},
	}
}

func (f *fakeStore) ActiveJobs(_ context.Context, q store.PoolQuery) ([]model.Job, error) {
	f.query = q
	return f.pool, nil
}

func (f *fakeStore) GetUserPreferences(_ context.Context, email string) (*model.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email == f.failFor {
		return nil, errors.New("connection reset")
	}
	p, ok := f.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ActiveUserEmails(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.users)+1)
	for email := range f.users {
		out = append(out, email)
	}
	if f.failFor != "" {
		out = append(out, f.failFor)
	}
	return out, nil
}

func (f *fakeStore) SaveMatches(_ context.Context, email string, run store.MatchRun, _ []model.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[email] = run
	return nil
}

func (f *fakeStore) LatestLedger(_ context.Context, email string) (*model.SendLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledgers[email], nil
}

func (f *fakeStore) UpsertLedger(_ context.Context, entry model.SendLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgers[entry.Email] = &entry
	return nil
}

type fakeMatcher struct {
	count int
}

func (f fakeMatcher) ComputeMatches(_ context.Context, prefs *model.UserPreferences, _ []model.Job) matching.Outcome {
	matches := make([]model.MatchResult, f.count)
	for i := range matches {
		matches[i] = model.MatchResult{Job: model.Job{JobHash: fmt.Sprintf("%s-%d", prefs.Email, i)}, MatchScore: 80}
	}
	return matching.Outcome{
		Matches: matches,
		Metadata: matching.Metadata{
			RunID:           "run-" + prefs.Email,
			MatchingMethod:  matching.MethodRuleBased,
			RelaxationLevel: matching.LevelStrict,
		},
	}
}

func newRunner(st *fakeStore, matches int, cfg Config) *Runner {
	r := NewRunner(st, fakeMatcher{count: matches}, sendconfig.Default(), cfg, nil)
	r.now = func() time.Time { return now }
	return r
}

func TestRunUserRecordsSend(t *testing.T) {
	st := newFakeStore()
	st.users["a@example.com"] = &model.UserPreferences{Email: "a@example.com", Tier: model.TierPremium}

	report, err := newRunner(st, 5, Config{}).RunUser(context.Background(), "a@example.com", nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusSent, report.Status)
	require.Equal(t, store.MatchRun{RunID: "run-a@example.com", MatchingMethod: "rule-based", RelaxationLevel: "strict"}, st.saved["a@example.com"])

	ledger := st.ledgers["a@example.com"]
	require.NotNil(t, ledger)
	require.Equal(t, 1, ledger.SendsUsed)
	require.Equal(t, 5, ledger.JobsSent)
	require.True(t, ledger.WeekStart.Equal(sendconfig.WeekStart(now)))
}

func TestRunUserOutcomes(t *testing.T) {
	usedUp := &model.SendLedgerEntry{Email: "u@example.com", Tier: model.TierFree, WeekStart: sendconfig.WeekStart(now), SendsUsed: 1}
	lastWeek := &model.SendLedgerEntry{Email: "u@example.com", Tier: model.TierFree, WeekStart: sendconfig.WeekStart(now).AddDate(0, 0, -7), SendsUsed: 1}

	tests := []struct {
		name    string
		tier    model.Tier
		ledger  *model.SendLedgerEntry
		matches int
		cfg     Config
		opts    Options
		want    Status
		saved   bool
	}{
		{name: "too few matches", tier: model.TierFree, matches: 4, want: StatusSkipped},
		{name: "quota used up", tier: model.TierFree, ledger: usedUp, matches: 5, want: StatusQuotaExhausted},
		{name: "new week resets quota", tier: model.TierFree, ledger: lastWeek, matches: 5, want: StatusSent, saved: true},
		{name: "dry run", tier: model.TierFree, matches: 5, opts: Options{DryRun: true}, want: StatusDryRun},
		{name: "declined", tier: model.TierFree, matches: 5, opts: Options{Confirm: func(Report) (bool, error) { return false, nil }}, want: StatusDeclined},
		{name: "confirmed", tier: model.TierFree, matches: 5, opts: Options{Confirm: func(Report) (bool, error) { return true, nil }}, want: StatusSent, saved: true},
		{name: "free tier has no send day", tier: model.TierFree, matches: 5, cfg: Config{RespectSendDays: true}, want: StatusNotSendDay},
		{name: "premium on wednesday", tier: model.TierPremium, matches: 5, cfg: Config{RespectSendDays: true}, want: StatusSent, saved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.users["u@example.com"] = &model.UserPreferences{Email: "u@example.com", Tier: tt.tier}
			if tt.ledger != nil {
				entry := *tt.ledger
				st.ledgers["u@example.com"] = &entry
			}

			report, err := newRunner(st, tt.matches, tt.cfg).RunUser(context.Background(), "u@example.com", nil, tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, report.Status)

			_, saved := st.saved["u@example.com"]
			require.Equal(t, tt.saved, saved)
		})
	}
}

func TestRunUserConfirmError(t *testing.T) {
	st := newFakeStore()
	st.users["a@example.com"] = &model.UserPreferences{Email: "a@example.com"}

	_, err := newRunner(st, 5, Config{}).RunUser(context.Background(), "a@example.com", nil, Options{
		Confirm: func(Report) (bool, error) { return false, errors.New("interrupted") },
	})
	require.Error(t, err)
	require.Empty(t, st.saved)
}

func TestRunUserUnknown(t *testing.T) {
	_, err := newRunner(newFakeStore(), 5, Config{}).RunUser(context.Background(), "ghost@example.com", nil, Options{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	st := newFakeStore()
	st.pool = []model.Job{{JobHash: "j1"}}
	st.failFor = "broken@example.com"
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		st.users[email] = &model.UserPreferences{Email: email, Tier: model.TierPremium}
	}

	r := newRunner(st, 5, Config{PoolLimit: 500, PoolMaxAge: 48 * time.Hour, Concurrency: 2})
	reports, err := r.RunAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, reports, 4)
	require.Equal(t, map[Status]int{StatusSent: 3, StatusFailed: 1}, Summarize(reports))
	require.Len(t, st.saved, 3)

	require.Equal(t, uint(500), st.query.Limit)
	require.True(t, st.query.Since.Equal(now.Add(-48*time.Hour)))
}
