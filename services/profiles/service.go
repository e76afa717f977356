// Package profiles provides access to user profile records: one per
// platform-authenticated identity, keyed by the unique telegram id.
package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/supabase"
)

const table = "profiles"

// Role selects which side of the marketplace a profile acts on. Immutable
// after first set; no transition operation exists.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// PortfolioItem is one entry of a freelancer's portfolio.
type PortfolioItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	ProjectURL  string   `json:"project_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Profile is a stored user identity with role-specific attributes. The id,
// rating, completed-job count, and timestamps are server-assigned.
type Profile struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id,omitempty"`
	TelegramID    int64           `json:"telegram_id"`
	Username      string          `json:"username,omitempty"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name,omitempty"`
	PhotoURL      string          `json:"photo_url,omitempty"`
	Role          Role            `json:"role"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	Skills        []string        `json:"skills,omitempty"`
	HourlyRate    float64         `json:"hourly_rate,omitempty"`
	Location      string          `json:"location,omitempty"`
	Website       string          `json:"website,omitempty"`
	Portfolio     []PortfolioItem `json:"portfolio,omitempty"`
	Rating        float64         `json:"rating,omitempty"`
	CompletedJobs int             `json:"completed_jobs,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UpsertParams is the writable field set for create-or-replace.
type UpsertParams struct {
	UserID      string   `json:"user_id,omitempty"`
	TelegramID  int64    `json:"telegram_id"`
	Username    string   `json:"username,omitempty"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty"`
	Role        Role     `json:"role"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	HourlyRate  float64  `json:"hourly_rate,omitempty"`
	Location    string   `json:"location,omitempty"`
	Website     string   `json:"website,omitempty"`
}

// SearchFilters narrows SearchFreelancers. Zero values mean "no filter".
type SearchFilters struct {
	Skills    []string // any-match overlap, not all-match
	MinRating float64  // inclusive
	MaxRate   float64  // inclusive, against hourly_rate
	Search    string   // case-insensitive substring on name/title/description
}

// Service provides profile access.
type Service struct {
	db  *supabase.Client
	log *logger.Logger
}

// New creates a profile service.
func New(db *supabase.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{db: db, log: log}
}

// Upsert creates or replaces the profile keyed on telegram_id.
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (*Profile, error) {
	if params.TelegramID == 0 {
		return nil, errs.RequiredError("telegram_id")
	}
	if params.FirstName == "" {
		return nil, errs.RequiredError("first_name")
	}
	if params.Role != RoleClient && params.Role != RoleFreelancer {
		return nil, errs.RequiredError("role")
	}

	var profile Profile
	err := s.db.From(table).
		OnConflict("telegram_id").
		Single().
		Insert(ctx, params, &profile)
	if err != nil {
		return nil, err
	}

	s.log.Debug("profile upserted", "profile_id", profile.ID, "telegram_id", profile.TelegramID)
	return &profile, nil
}

// GetByTelegramID returns the profile for the given platform identity, or
// (nil, nil) when none exists. Other failures surface as errors.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*Profile, error) {
	var profile Profile
	err := s.db.From(table).
		Select("*").
		Eq("telegram_id", telegramID).
		Single().
		Get(ctx, &profile)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByID returns the profile with the given id.
func (s *Service) GetByID(ctx context.Context, profileID string) (*Profile, error) {
	var profile Profile
	err := s.db.From(table).
		Select("*").
		Eq("id", profileID).
		Single().
		Get(ctx, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update applies a partial merge to the profile.
func (s *Service) Update(ctx context.Context, profileID string, fields map[string]any) (*Profile, error) {
	var profile Profile
	err := s.db.From(table).
		Eq("id", profileID).
		Single().
		Update(ctx, fields, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SearchFreelancers lists freelancer profiles matching every supplied
// filter, ordered by rating descending. An empty filter set returns all
// freelancers.
func (s *Service) SearchFreelancers(ctx context.Context, filters SearchFilters) ([]Profile, error) {
	q := s.db.From(table).
		Select("*").
		Eq("role", RoleFreelancer)

	if len(filters.Skills) > 0 {
		q = q.Overlaps("skills", filters.Skills)
	}
	if filters.MinRating > 0 {
		q = q.Gte("rating", filters.MinRating)
	}
	if filters.MaxRate > 0 {
		q = q.Lte("hourly_rate", filters.MaxRate)
	}
	if filters.Search != "" {
		pattern := "*" + filters.Search + "*"
		q = q.Or(
			fmt.Sprintf("first_name.ilike.%s", pattern),
			fmt.Sprintf("title.ilike.%s", pattern),
			fmt.Sprintf("description.ilike.%s", pattern),
		)
	}

	var out []Profile
	if err := q.Order("rating", false).Get(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
