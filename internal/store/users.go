package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"

	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store/dbutil"
)

const usersTable = "users"

var userColumns = []string{
	"email", "target_cities", "career_path", "roles_selected", "work_environment",
	"entry_level_preference", "languages_spoken", "company_types", "visa_sponsorship", "subscription_tier",
}

type userRow struct {
	Email                string         `db:"email"`
	Cities               pq.StringArray `db:"target_cities"`
	CareerPaths          pq.StringArray `db:"career_path"`
	Roles                pq.StringArray `db:"roles_selected"`
	WorkEnvironment      sql.NullString `db:"work_environment"`
	EntryLevelPreference sql.NullString `db:"entry_level_preference"`
	Languages            pq.StringArray `db:"languages_spoken"`
	CompanyTypes         pq.StringArray `db:"company_types"`
	VisaSponsorship      sql.NullBool   `db:"visa_sponsorship"`
	Tier                 sql.NullString `db:"subscription_tier"`
}

func (r userRow) toModel() model.UserPreferences {
	return model.UserPreferences{
		Email:                r.Email,
		Cities:               []string(r.Cities),
		CareerPaths:          []string(r.CareerPaths),
		Roles:                []string(r.Roles),
		WorkEnvironment:      r.WorkEnvironment.String,
		EntryLevelPreference: r.EntryLevelPreference.String,
		Languages:            []string(r.Languages),
		CompanyTypes:         []string(r.CompanyTypes),
		VisaSponsorship:      r.VisaSponsorship.Bool,
		Tier:                 model.ParseTier(r.Tier.String),
	}
}

// GetUserPreferences loads the profile of one user.
func (s *Store) GetUserPreferences(ctx context.Context, email string) (*model.UserPreferences, error) {
	where := map[string]interface{}{"email": email, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect(usersTable, where, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	var row userRow
	if err := s.db.GetContext(ctx, &row, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	prefs := row.toModel()
	return &prefs, nil
}

// ActiveUserEmails lists users that should receive matches.
func (s *Store) ActiveUserEmails(ctx context.Context) ([]string, error) {
	where := map[string]interface{}{"active": true, "_orderby": "email asc"}
	sqlStr, args, err := builder.BuildSelect(usersTable, where, []string{"email"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)

	var emails []string
	if err := s.db.SelectContext(ctx, &emails, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select active users: %w", err)
	}
	return emails, nil
}
