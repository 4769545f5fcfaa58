package sendconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhysr01/jobping/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 30, 0, 0, time.UTC)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	free := cfg.Tier(model.TierFree)
	require.Empty(t, free.SendDays)
	require.Equal(t, 5, free.JobsPerSend)
	require.Equal(t, 1, free.SendsPerWeek)
	require.Equal(t, 5, free.SignupBonus)

	premium := cfg.Tier(model.TierPremium)
	require.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, premium.SendDays)
	require.Equal(t, 3, premium.SendsPerWeek)
	require.Equal(t, 10, premium.SignupBonus)

	require.Equal(t, 65.0, cfg.Rules.MinScore)
	require.Equal(t, 30, cfg.Rules.LookbackDays)
	require.Equal(t, 2, cfg.Rules.MaxJobsPerCompany)
	require.Equal(t, 40, cfg.Rules.MaxJobsPerSource)

	require.Equal(t, free, cfg.Tier(model.Tier("gold")))
}

func TestWeekStart(t *testing.T) {
	// 2026-10-19 is a Monday.
	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	require.Equal(t, monday, WeekStart(date(2026, 10, 19)))
	require.Equal(t, monday, WeekStart(date(2026, 10, 21)))
	require.Equal(t, monday, WeekStart(date(2026, 10, 25)))
	require.Equal(t, monday.AddDate(0, 0, 7), WeekStart(date(2026, 10, 26)))
}

func TestCanUserReceiveSend(t *testing.T) {
	cfg := Default()
	now := date(2026, 10, 21)

	tests := []struct {
		name   string
		ledger *model.SendLedgerEntry
		tier   model.Tier
		expect bool
	}{
		{name: "no ledger", ledger: nil, tier: model.TierFree, expect: true},
		{name: "previous week ignores usage", ledger: &model.SendLedgerEntry{WeekStart: date(2026, 10, 12), SendsUsed: 99}, tier: model.TierFree, expect: true},
		{name: "free quota used", ledger: &model.SendLedgerEntry{WeekStart: date(2026, 10, 19), SendsUsed: 1}, tier: model.TierFree, expect: false},
		{name: "premium has room", ledger: &model.SendLedgerEntry{WeekStart: date(2026, 10, 19), SendsUsed: 2}, tier: model.TierPremium, expect: true},
		{name: "premium quota used", ledger: &model.SendLedgerEntry{WeekStart: date(2026, 10, 20), SendsUsed: 3}, tier: model.TierPremium, expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expect, cfg.CanUserReceiveSend(tt.ledger, now, tt.tier))
		})
	}
}

func TestShouldSkipSendAndSendDays(t *testing.T) {
	cfg := Default()

	require.True(t, cfg.ShouldSkipSend(0, model.TierFree))
	require.True(t, cfg.ShouldSkipSend(4, model.TierPremium))
	require.False(t, cfg.ShouldSkipSend(5, model.TierFree))

	for d := 0; d < 7; d++ {
		day := date(2026, 10, 19).AddDate(0, 0, d)
		require.False(t, cfg.IsSendDay(model.TierFree, day))
	}
	require.True(t, cfg.IsSendDay(model.TierPremium, date(2026, 10, 19)))
	require.False(t, cfg.IsSendDay(model.TierPremium, date(2026, 10, 20)))
	require.True(t, cfg.IsSendDay(model.TierPremium, date(2026, 10, 23)))
}

func TestRecordSend(t *testing.T) {
	cfg := Default()
	now := date(2026, 10, 21)

	entry, ok := cfg.RecordSend(nil, "a@example.com", model.TierFree, 5, now)
	require.True(t, ok)
	require.Equal(t, 1, entry.SendsUsed)
	require.Equal(t, 5, entry.JobsSent)
	require.Equal(t, WeekStart(now), entry.WeekStart)

	again, ok := cfg.RecordSend(&entry, "a@example.com", model.TierFree, 5, now.Add(time.Hour))
	require.False(t, ok)
	require.Equal(t, 1, again.SendsUsed)

	nextWeek, ok := cfg.RecordSend(&entry, "a@example.com", model.TierFree, 3, now.AddDate(0, 0, 7))
	require.True(t, ok)
	require.Equal(t, 1, nextWeek.SendsUsed)
	require.Equal(t, 3, nextWeek.JobsSent)
}
