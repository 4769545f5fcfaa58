package sendconfig

import (
	"time"

	"github.com/rhysr01/jobping/internal/model"
)

// TierConfig holds the delivery cadence of one tier.
type TierConfig struct {
	SendDays     []time.Weekday `mapstructure:"send-days"`
	JobsPerSend  int            `mapstructure:"jobs-per-send"`
	SendsPerWeek int            `mapstructure:"sends-per-week"`
	SignupBonus  int            `mapstructure:"signup-bonus"`
}

// MatchRules are the thresholds shared by selection and relaxation.
type MatchRules struct {
	MinScore          float64 `mapstructure:"min-score"`
	RelaxedMinScore   float64 `mapstructure:"relaxed-min-score"`
	LookbackDays      int     `mapstructure:"lookback-days"`
	MaxJobsPerCompany int     `mapstructure:"max-jobs-per-company"`
	MaxJobsPerSource  int     `mapstructure:"max-jobs-per-source"`
}

// Config is the full send policy.
type Config struct {
	Tiers map[model.Tier]TierConfig
	Rules MatchRules
}

func DefaultRules() MatchRules {
	return MatchRules{
		MinScore:          65,
		RelaxedMinScore:   45,
		LookbackDays:      30,
		MaxJobsPerCompany: 2,
		MaxJobsPerSource:  40,
	}
}

func Default() Config {
	return Config{
		Tiers: map[model.Tier]TierConfig{
			model.TierFree: {
				SendDays:     nil,
				JobsPerSend:  5,
				SendsPerWeek: 1,
				SignupBonus:  5,
			},
			model.TierPremium: {
				SendDays:     []time.Weekday{time.Monday, time.Wednesday, time.Friday},
				JobsPerSend:  5,
				SendsPerWeek: 3,
				SignupBonus:  10,
			},
		},
		Rules: DefaultRules(),
	}
}

// Tier returns the configuration of the tier, falling back to the free tier for unknown values.
func (c Config) Tier(tier model.Tier) TierConfig {
	if tc, ok := c.Tiers[tier]; ok {
		return tc
	}
	return c.Tiers[model.TierFree]
}

// JobsPerSend is the target match count for one send.
func (c Config) JobsPerSend(tier model.Tier) int {
	return c.Tier(tier).JobsPerSend
}

// WeekStart returns midnight UTC of the Monday that starts t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// CanUserReceiveSend reports whether another send fits the user's weekly quota.
// A ledger from a previous week always allows a send.
func (c Config) CanUserReceiveSend(ledger *model.SendLedgerEntry, currentWeek time.Time, tier model.Tier) bool {
	if ledger == nil {
		return true
	}
	if !WeekStart(ledger.WeekStart).Equal(WeekStart(currentWeek)) {
		return true
	}
	return ledger.SendsUsed < c.Tier(tier).SendsPerWeek
}

// ShouldSkipSend reports whether there are too few eligible jobs for a full send.
func (c Config) ShouldSkipSend(eligibleJobs int, tier model.Tier) bool {
	return eligibleJobs < c.Tier(tier).JobsPerSend
}

// IsSendDay reports whether the tier has a scheduled digest on the weekday of now.
// Free users never have one.
func (c Config) IsSendDay(tier model.Tier, now time.Time) bool {
	for _, d := range c.Tier(tier).SendDays {
		if d == now.Weekday() {
			return true
		}
	}
	return false
}

// RecordSend returns the ledger after one more send of jobs at now. The week rolls over
// when now falls in a later ISO week. ok is false when the quota is already used up.
func (c Config) RecordSend(ledger *model.SendLedgerEntry, email string, tier model.Tier, jobs int, now time.Time) (model.SendLedgerEntry, bool) {
	week := WeekStart(now)
	next := model.SendLedgerEntry{Email: email, Tier: tier, WeekStart: week}
	if ledger != nil && WeekStart(ledger.WeekStart).Equal(week) {
		next = *ledger
		next.Tier = tier
	}

	if !c.CanUserReceiveSend(&next, week, tier) {
		return next, false
	}

	sent := now.UTC()
	next.SendsUsed++
	next.JobsSent += jobs
	next.LastSendDate = &sent
	return next, true
}
