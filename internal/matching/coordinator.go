// Package matching guarantees a minimum match count by relaxing constraints level by level.
package matching

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/distributor"
	"github.com/rhysr01/jobping/internal/filtering"
	"github.com/rhysr01/jobping/internal/logger"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/retrieval"
	"github.com/rhysr01/jobping/internal/scoring"
	"github.com/rhysr01/jobping/internal/sendconfig"
)

// Method names the path that produced a result.
type Method string

const (
	MethodAI        Method = "ai"
	MethodSemantic  Method = "semantic"
	MethodRuleBased Method = "rule-based"
)

// Retriever supplies semantic candidates.
type Retriever interface {
	GetSemanticCandidates(ctx context.Context, prefs *model.UserPreferences, limit int) retrieval.Result
}

// History lists the jobs already delivered to a user.
type History interface {
	SentJobHashes(ctx context.Context, email string) ([]string, error)
}

type Config struct {
	AITimeout         time.Duration `mapstructure:"ai-timeout"`
	AIMaxCandidates   int           `mapstructure:"ai-max-candidates"`
	SemanticLimit     int           `mapstructure:"semantic-limit"`
	HistoryTimeout    time.Duration `mapstructure:"history-timeout"`
	ExcludedCompanies []string      `mapstructure:"excluded-companies"`
}

func DefaultConfig() Config {
	return Config{
		AITimeout:       20 * time.Second,
		AIMaxCandidates: 50,
		SemanticLimit:   200,
		HistoryTimeout:  5 * time.Second,
	}
}

// Deps are the collaborators of a Coordinator. Retriever, Reranker and History are optional.
type Deps struct {
	Send        sendconfig.Config
	Mapper      *category.Mapper
	Scorer      *scoring.Scorer
	Distributor *distributor.Distributor
	Retriever   Retriever
	Reranker    ai.Reranker
	History     History
	Logger      *zap.Logger
	Now         func() time.Time
}

// Attempt records the outcome of one ladder level.
type Attempt struct {
	Level    Level
	Method   Method
	Eligible int
	Count    int
}

type Metadata struct {
	MatchingMethod  Method
	RelaxationLevel Level
	ProcessingTime  time.Duration
	RunID           string
	Target          int
	// SemanticStatus is empty when no retriever is configured.
	SemanticStatus retrieval.Status
	// Interrupted is set when the caller's deadline stopped the ladder.
	Interrupted bool
	Attempts    []Attempt
}

// Outcome is the result of one matching run.
type Outcome struct {
	Matches  []model.MatchResult
	Metadata Metadata
	Metrics  distributor.Metrics
}

type Coordinator struct {
	send        sendconfig.Config
	mapper      *category.Mapper
	scorer      *scoring.Scorer
	distributor *distributor.Distributor
	retriever   Retriever
	reranker    ai.Reranker
	history     History
	ladder      []ConstraintSet
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

func New(deps Deps, cfg Config) *Coordinator {
	d := DefaultConfig()
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = d.AITimeout
	}
	if cfg.AIMaxCandidates <= 0 {
		cfg.AIMaxCandidates = d.AIMaxCandidates
	}
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = d.SemanticLimit
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = d.HistoryTimeout
	}

	if deps.Send.Tiers == nil {
		deps.Send = sendconfig.Default()
	}
	if deps.Mapper == nil {
		deps.Mapper = category.New()
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.New(deps.Mapper, scoring.DefaultWeights())
	}
	if deps.Distributor == nil {
		deps.Distributor = distributor.New(deps.Mapper, deps.Send.Rules.MaxJobsPerCompany)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Coordinator{
		send:        deps.Send,
		mapper:      deps.Mapper,
		scorer:      deps.Scorer,
		distributor: deps.Distributor,
		retriever:   deps.Retriever,
		reranker:    deps.Reranker,
		history:     deps.History,
		ladder:      Ladder(deps.Send.Rules),
		cfg:         cfg,
		logger:      logger.WithFields(deps.Logger, logger.Stage("matching")),
		now:         deps.Now,
	}
}

// run is the state shared by the levels of one ComputeMatches call.
type run struct {
	prefs     *model.UserPreferences
	pool      []model.Job
	now       time.Time
	target    int
	sent      []string
	semantic  map[string]float64
	aiEnabled bool
	logger    *zap.Logger
}

type levelResult struct {
	level    Level
	method   Method
	eligible int
	matches  []model.MatchResult
	metrics  distributor.Metrics
}

// ComputeMatches selects up to the tier's jobs-per-send from pool. It walks the ladder
// until a level reaches the target and never fails: an under-target result after the
// last level is reported as LevelExhausted.
func (c *Coordinator) ComputeMatches(ctx context.Context, prefs *model.UserPreferences, pool []model.Job) Outcome {
	if prefs == nil {
		prefs = &model.UserPreferences{}
	}

	start := c.now()
	runID := logger.NewRunID()
	log := logger.WithRun(c.logger, prefs.Email, runID)

	r := &run{
		prefs:     prefs,
		pool:      pool,
		now:       start,
		target:    c.send.JobsPerSend(prefs.Tier),
		aiEnabled: c.reranker != nil,
		logger:    log,
	}
	r.sent = c.loadHistory(ctx, r)

	meta := Metadata{RunID: runID, Target: r.target}
	meta.SemanticStatus = c.retrieve(ctx, r)

	var best, last *levelResult
	for _, cs := range c.ladder {
		if err := ctx.Err(); err != nil {
			log.Warn("deadline reached, stopping relaxation ladder", zap.String("next_level", string(cs.Level)), zap.Error(err))
			meta.Interrupted = true
			break
		}

		res := c.attempt(ctx, r, cs)
		meta.Attempts = append(meta.Attempts, Attempt{Level: res.level, Method: res.method, Eligible: res.eligible, Count: len(res.matches)})
		last = &res
		if best == nil || len(res.matches) > len(best.matches) {
			best = &res
		}

		if len(res.matches) >= r.target {
			return c.finish(r, meta, res, res.level, start)
		}
		log.Info("level below target, relaxing",
			zap.String("level", string(cs.Level)),
			zap.Int("matches", len(res.matches)),
			zap.Int("target", r.target),
		)
	}

	switch {
	case meta.Interrupted && best != nil:
		return c.finish(r, meta, *best, best.level, start)
	case meta.Interrupted:
		return c.finish(r, meta, levelResult{method: MethodRuleBased}, LevelExhausted, start)
	}
	return c.finish(r, meta, *last, LevelExhausted, start)
}

func (c *Coordinator) finish(r *run, meta Metadata, res levelResult, level Level, start time.Time) Outcome {
	meta.MatchingMethod = res.method
	meta.RelaxationLevel = level
	meta.ProcessingTime = c.now().Sub(start)

	metrics := res.metrics
	metrics.TotalJobs = len(r.pool)
	metrics.ProcessingTime = meta.ProcessingTime

	r.logger.Info("matching finished",
		zap.String("matching_method", string(meta.MatchingMethod)),
		zap.String("relaxation_level", string(meta.RelaxationLevel)),
		zap.Int("matches", len(res.matches)),
		zap.Int("target", r.target),
		zap.Int("attempts", len(meta.Attempts)),
		zap.Bool("interrupted", meta.Interrupted),
		zap.Duration("processing_time", meta.ProcessingTime),
	)

	return Outcome{Matches: res.matches, Metadata: meta, Metrics: metrics}
}

func (c *Coordinator) loadHistory(ctx context.Context, r *run) []string {
	if c.history == nil || r.prefs.Email == "" {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.HistoryTimeout)
	defer cancel()

	sent, err := c.history.SentJobHashes(callCtx, r.prefs.Email)
	if err != nil {
		r.logger.Warn("loading sent jobs failed, previously sent jobs may repeat", logger.Stage("history"), zap.Error(err))
		return nil
	}
	return sent
}

func (c *Coordinator) retrieve(ctx context.Context, r *run) retrieval.Status {
	if c.retriever == nil {
		return ""
	}

	res := c.retriever.GetSemanticCandidates(ctx, r.prefs, c.cfg.SemanticLimit)
	if !res.OK() {
		r.logger.Info("semantic candidates unavailable, using rule-based paths",
			logger.Stage("semantic_retrieval"),
			zap.String("status", string(res.Status)),
			zap.String("reason", res.Reason),
		)
		return res.Status
	}

	r.semantic = make(map[string]float64, len(res.Candidates))
	for _, cand := range res.Candidates {
		r.semantic[cand.JobHash] = cand.SemanticScore
	}
	return res.Status
}

// attempt runs one level: AI rerank, then semantic candidates, then rule-based selection.
// The first path reaching the target wins; otherwise the rule-based result is returned.
func (c *Coordinator) attempt(ctx context.Context, r *run, cs ConstraintSet) levelResult {
	log := r.logger.With(zap.String("level", string(cs.Level)))

	deps := filtering.Deps{
		Logger: log,
		Prefs:  r.prefs,
		Mapper: c.mapper,
		Scorer: c.scorer,
		Now:    r.now,
	}
	pipeline := cs.Pipeline()
	log.Debug("constraint set", zap.Any("filters", filtering.Describe(pipeline)))

	eligible, err := filtering.Run(ctx, cs.FilterConfig(c.cfg.ExcludedCompanies, r.sent), deps, pipeline, r.pool)
	if err != nil {
		log.Error("filtering failed", zap.Error(err))
		return levelResult{level: cs.Level, method: MethodRuleBased}
	}

	if res, ok := c.tryAI(ctx, r, cs.Level, eligible, log); ok {
		return res
	}
	if res, ok := c.trySemantic(r, cs.Level, eligible); ok {
		return res
	}
	return c.ruleBased(r, cs.Level, eligible)
}

func (c *Coordinator) tryAI(ctx context.Context, r *run, level Level, eligible []model.Job, log *zap.Logger) (levelResult, bool) {
	if !r.aiEnabled || len(eligible) < r.target || r.target == 0 {
		return levelResult{}, false
	}

	ranked := c.distributor.Rank(r.prefs, eligible)
	if len(ranked) > c.cfg.AIMaxCandidates {
		ranked = ranked[:c.cfg.AIMaxCandidates]
	}
	candidates := make([]model.Job, 0, len(ranked))
	byHash := make(map[string]distributor.Ranked, len(ranked))
	for _, rk := range ranked {
		candidates = append(candidates, rk.Job)
		byHash[rk.Job.JobHash] = rk
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.AITimeout)
	defer cancel()

	scored, err := c.reranker.Rerank(callCtx, r.prefs, candidates, 0)
	if err != nil {
		r.aiEnabled = false
		log.Warn("ai rerank failed, falling back", logger.Stage("ai_rerank"), zap.Error(err))
		return levelResult{}, false
	}

	type pick struct {
		ranked distributor.Ranked
		match  ai.RankedMatch
	}
	ordered := make([]pick, 0, len(scored))
	for _, m := range scored {
		if rk, ok := byHash[m.JobHash]; ok {
			ordered = append(ordered, pick{ranked: rk, match: m})
		}
	}
	selected := distributor.SelectDiverse(ordered, r.target, c.distributor.MaxJobsPerCompany(), func(p pick) string { return p.ranked.Job.Company })
	if len(selected) < r.target {
		log.Info("ai rerank returned too few matches", zap.Int("matches", len(selected)), zap.Int("target", r.target))
		return levelResult{}, false
	}

	matches := make([]model.MatchResult, 0, len(selected))
	rankedSel := make([]distributor.Ranked, 0, len(selected))
	for _, p := range selected {
		reason := p.match.Reason
		if reason == "" {
			reason = c.scorer.Score(r.prefs, &p.ranked.Job, r.semantic[p.ranked.Job.JobHash], r.now).Reason
		}
		matches = append(matches, model.MatchResult{
			Job:         p.ranked.Job,
			MatchScore:  p.match.Score,
			MatchReason: reason,
			Provenance:  model.ProvenanceAI,
		})
		rankedSel = append(rankedSel, p.ranked)
	}

	return levelResult{
		level:    level,
		method:   MethodAI,
		eligible: len(eligible),
		matches:  matches,
		metrics:  c.distributor.Summarize(r.prefs, r.prefs.Tier, len(eligible), len(eligible), rankedSel),
	}, true
}

func (c *Coordinator) trySemantic(r *run, level Level, eligible []model.Job) (levelResult, bool) {
	if len(r.semantic) == 0 {
		return levelResult{}, false
	}

	subset := make([]model.Job, 0, len(r.semantic))
	for _, j := range eligible {
		if _, ok := r.semantic[j.JobHash]; ok {
			subset = append(subset, j)
		}
	}
	if len(subset) < r.target || len(subset) == 0 {
		return levelResult{}, false
	}

	res := c.distributor.Distribute(r.prefs, subset, r.prefs.Tier, r.target)
	if len(res.Jobs) < r.target {
		return levelResult{}, false
	}
	return levelResult{
		level:    level,
		method:   MethodSemantic,
		eligible: len(eligible),
		matches:  c.results(r, res.Jobs, model.ProvenanceSemantic, true),
		metrics:  res.Metrics,
	}, true
}

func (c *Coordinator) ruleBased(r *run, level Level, eligible []model.Job) levelResult {
	res := c.distributor.Distribute(r.prefs, eligible, r.prefs.Tier, r.target)
	return levelResult{
		level:    level,
		method:   MethodRuleBased,
		eligible: len(eligible),
		matches:  c.results(r, res.Jobs, model.ProvenanceFallback, false),
		metrics:  res.Metrics,
	}
}

func (c *Coordinator) results(r *run, ranked []distributor.Ranked, provenance model.Provenance, semantic bool) []model.MatchResult {
	out := make([]model.MatchResult, 0, len(ranked))
	for i := range ranked {
		job := ranked[i].Job
		sim := 0.0
		if semantic {
			sim = r.semantic[job.JobHash]
		}
		score := c.scorer.Score(r.prefs, &job, sim, r.now)
		out = append(out, model.MatchResult{
			Job:         job,
			MatchScore:  score.Total,
			MatchReason: score.Reason,
			Provenance:  provenance,
		})
	}
	return out
}
