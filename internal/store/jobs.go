package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store/dbutil"
)

const jobsTable = "jobs"

var jobColumns = []string{
	"id", "job_hash", "title", "company", "location", "city", "country", "description",
	"work_environment", "source", "posted_at", "created_at", "categories", "language_requirements",
	"is_internship", "is_graduate", "is_early_career", "is_active",
}

type jobRow struct {
	ID                   int64          `db:"id"`
	JobHash              string         `db:"job_hash"`
	Title                sql.NullString `db:"title"`
	Company              sql.NullString `db:"company"`
	Location             sql.NullString `db:"location"`
	City                 sql.NullString `db:"city"`
	Country              sql.NullString `db:"country"`
	Description          sql.NullString `db:"description"`
	WorkEnvironment      sql.NullString `db:"work_environment"`
	Source               sql.NullString `db:"source"`
	PostedAt             sql.NullTime   `db:"posted_at"`
	CreatedAt            time.Time      `db:"created_at"`
	Categories           pq.StringArray `db:"categories"`
	LanguageRequirements pq.StringArray `db:"language_requirements"`
	IsInternship         bool           `db:"is_internship"`
	IsGraduate           bool           `db:"is_graduate"`
	IsEarlyCareer        bool           `db:"is_early_career"`
	IsActive             bool           `db:"is_active"`
}

type semanticRow struct {
	jobRow
	SemanticScore     float64 `db:"semantic_score"`
	EmbeddingDistance float64 `db:"embedding_distance"`
}

func (r jobRow) toModel() model.Job {
	job := model.Job{
		ID:                   r.ID,
		JobHash:              r.JobHash,
		Title:                r.Title.String,
		Company:              r.Company.String,
		Location:             r.Location.String,
		City:                 r.City.String,
		Country:              r.Country.String,
		Description:          r.Description.String,
		WorkEnvironment:      r.WorkEnvironment.String,
		Source:               r.Source.String,
		CreatedAt:            r.CreatedAt,
		Categories:           []string(r.Categories),
		LanguageRequirements: []string(r.LanguageRequirements),
		IsInternship:         r.IsInternship,
		IsGraduate:           r.IsGraduate,
		IsEarlyCareer:        r.IsEarlyCareer,
		IsActive:             r.IsActive,
	}
	if r.PostedAt.Valid {
		posted := r.PostedAt.Time
		job.PostedAt = &posted
	}
	return job
}

// PoolQuery narrows the active job pool loaded for a matching run.
type PoolQuery struct {
	// Since drops jobs ingested before this time when set.
	Since time.Time
	Limit uint
}

// ActiveJobs loads the active job pool, newest first.
func (s *Store) ActiveJobs(ctx context.Context, q PoolQuery) ([]model.Job, error) {
	where := map[string]interface{}{
		"is_active": true,
		"_orderby":  "created_at desc, job_hash asc",
	}
	if !q.Since.IsZero() {
		where["created_at >="] = q.Since
	}
	if q.Limit > 0 {
		where["_limit"] = []uint{0, q.Limit}
	}
	return s.selectJobs(ctx, where)
}

// JobsMissingEmbeddings returns active jobs without a stored vector.
func (s *Store) JobsMissingEmbeddings(ctx context.Context, limit uint) ([]model.Job, error) {
	where := map[string]interface{}{
		"is_active": true,
		"embedding": builder.IsNull,
		"_orderby":  "created_at desc, job_hash asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	jobs, err := s.selectJobs(ctx, where)
	return jobs, classifyVectorErr(err)
}

func (s *Store) selectJobs(ctx context.Context, where map[string]interface{}) ([]model.Job, error) {
	sqlStr, args, err := builder.BuildSelect(jobsTable, where, jobColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}

	jobs := make([]model.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toModel())
	}
	return jobs, nil
}

// Coverage counts active jobs and those among them with a stored embedding.
type Coverage struct {
	Active   int `db:"active"`
	Embedded int `db:"embedded"`
}

// Ratio is the embedded share of active jobs, 0 for an empty pool.
func (c Coverage) Ratio() float64 {
	if c.Active == 0 {
		return 0
	}
	return float64(c.Embedded) / float64(c.Active)
}

func (s *Store) EmbeddingCoverage(ctx context.Context) (Coverage, error) {
	const query = `
		SELECT COUNT(*) AS active,
		       COUNT(*) FILTER (WHERE embedding IS NOT NULL) AS embedded
		FROM jobs
		WHERE is_active = true
	`
	var c Coverage
	if err := s.db.GetContext(ctx, &c, query); err != nil {
		return Coverage{}, classifyVectorErr(fmt.Errorf("embedding coverage: %w", err))
	}
	return c, nil
}

// UpdateJobEmbedding stores the vector of one job. Last write wins.
func (s *Store) UpdateJobEmbedding(ctx context.Context, jobHash string, embedding []float32) error {
	const query = `UPDATE jobs SET embedding = $1 WHERE job_hash = $2`
	res, err := s.db.ExecContext(ctx, query, pgvector.NewVector(embedding), jobHash)
	if err != nil {
		return classifyVectorErr(fmt.Errorf("update embedding: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobHash, ErrNotFound)
	}
	return nil
}

// SimilarityQuery describes a filtered cosine similarity search.
type SimilarityQuery struct {
	Vector     []float32
	Cities     []string
	Categories []string
	// MinSimilarity is inclusive.
	MinSimilarity float64
	Limit         int
}

// SimilaritySearch returns active jobs ordered by cosine similarity to the query vector.
func (s *Store) SimilaritySearch(ctx context.Context, q SimilarityQuery) ([]model.SemanticJob, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("similarity search: empty query vector")
	}

	vec := pgvector.NewVector(q.Vector)
	cols := make([]string, 0, len(jobColumns))
	for _, c := range jobColumns {
		cols = append(cols, "j."+c)
	}

	var (
		conds = []string{"j.is_active = true", "j.embedding IS NOT NULL", "1 - (j.embedding <=> ?) >= ?"}
		args  = []interface{}{vec, vec, vec, q.MinSimilarity}
	)
	if len(q.Cities) > 0 {
		lowered := make([]string, 0, len(q.Cities))
		for _, c := range q.Cities {
			lowered = append(lowered, strings.ToLower(strings.TrimSpace(c)))
		}
		conds = append(conds, "lower(j.city) = ANY(?)")
		args = append(args, pq.Array(lowered))
	}
	if len(q.Categories) > 0 {
		conds = append(conds, "j.categories && ?")
		args = append(args, pq.Array(q.Categories))
	}
	args = append(args, vec, q.Limit)

	query := "SELECT " + strings.Join(cols, ", ") +
		", 1 - (j.embedding <=> ?) AS semantic_score, (j.embedding <=> ?) AS embedding_distance" +
		" FROM jobs j WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY j.embedding <=> ? ASC, j.job_hash ASC LIMIT ?"
	query, args = dbutil.Finalize(query, args)

	var rows []semanticRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyVectorErr(fmt.Errorf("similarity search: %w", err))
	}

	out := make([]model.SemanticJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.SemanticJob{
			Job:               r.jobRow.toModel(),
			SemanticScore:     r.SemanticScore,
			EmbeddingDistance: r.EmbeddingDistance,
		})
	}
	return out, nil
}
