// Package jobs provides access to job postings and the applications filed
// against them.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

const (
	jobsTable         = "jobs"
	applicationsTable = "applications"
)

// AllCategories is the sentinel category meaning "no category filter".
const AllCategories = "All Categories"

// Status is a job's lifecycle state. Jobs are created open; in_progress is
// entered only as a side effect of accepting an application. The completed
// and cancelled transitions are driven outside this layer.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// BudgetType distinguishes fixed-price from hourly jobs.
type BudgetType string

const (
	BudgetFixed  BudgetType = "fixed"
	BudgetHourly BudgetType = "hourly"
)

// ApplicationStatus is an application's lifecycle state.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Job is a posted work item owned by a client profile.
type Job struct {
	ID           string     `json:"id"`
	ClientID     string     `json:"client_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	BudgetType   BudgetType `json:"budget_type"`
	BudgetAmount float64    `json:"budget_amount"`
	Currency     string     `json:"currency,omitempty"`
	Skills       []string   `json:"skills,omitempty"`
	Status       Status     `json:"status"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Expansions, populated by list operations.
	Client       *profiles.Profile `json:"client,omitempty"`
	Applications []Application     `json:"applications,omitempty"`

	// ApplicationCount is populated by List, which fetches a count
	// instead of the application rows.
	ApplicationCount int `json:"-"`
}

// Application is a freelancer's bid against a job.
type Application struct {
	ID                string            `json:"id"`
	JobID             string            `json:"job_id"`
	FreelancerID      string            `json:"freelancer_id"`
	Proposal          string            `json:"proposal"`
	BidAmount         float64           `json:"bid_amount"`
	EstimatedDuration string            `json:"estimated_duration,omitempty"`
	Status            ApplicationStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	// Expansions.
	Job        *Job              `json:"job,omitempty"`
	Freelancer *profiles.Profile `json:"freelancer,omitempty"`
}

// Filters narrows List. Zero values mean "no filter"; the AllCategories
// sentinel also disables the category filter.
type Filters struct {
	Status   Status
	Category string
	Search   string // case-insensitive substring over title or description
}

// CreateParams is the writable field set for a new job.
type CreateParams struct {
	ClientID     string     `json:"client_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	BudgetType   BudgetType `json:"budget_type"`
	BudgetAmount float64    `json:"budget_amount"`
	Currency     string     `json:"currency,omitempty"`
	Skills       []string   `json:"skills"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// ApplyParams is the writable field set for a new application.
type ApplyParams struct {
	JobID             string  `json:"job_id"`
	FreelancerID      string  `json:"freelancer_id"`
	Proposal          string  `json:"proposal"`
	BidAmount         float64 `json:"bid_amount"`
	EstimatedDuration string  `json:"estimated_duration,omitempty"`
}

// Service provides job and application access.
type Service struct {
	db  *supabase.Client
	log *logger.Logger
}

// New creates a job service.
func New(db *supabase.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Service{db: db, log: log}
}

// List returns jobs matching the filters, newest first, each enriched with
// its owning client profile and an application count.
func (s *Service) List(ctx context.Context, filters Filters) ([]Job, error) {
	q := s.db.From(jobsTable).
		Select("*,client:profiles!jobs_client_id_fkey(*),applications(count)").
		Order("created_at", false)

	if filters.Status != "" {
		q = q.Eq("status", filters.Status)
	}
	if filters.Category != "" && filters.Category != AllCategories {
		q = q.Eq("category", filters.Category)
	}
	if filters.Search != "" {
		pattern := "*" + filters.Search + "*"
		q = q.Or(
			fmt.Sprintf("title.ilike.%s", pattern),
			fmt.Sprintf("description.ilike.%s", pattern),
		)
	}

	// The applications expansion carries a count row, not application rows.
	var rows []struct {
		Job
		Applications []struct {
			Count int `json:"count"`
		} `json:"applications"`
	}
	if err := q.Get(ctx, &rows); err != nil {
		return nil, err
	}

	out := make([]Job, 0, len(rows))
	for _, row := range rows {
		job := row.Job
		if len(row.Applications) > 0 {
			job.ApplicationCount = row.Applications[0].Count
		}
		out = append(out, job)
	}
	return out, nil
}

// ListByClient returns all jobs owned by the client, newest first, each
// enriched with its full application list and each application's
// freelancer profile.
func (s *Service) ListByClient(ctx context.Context, clientID string) ([]Job, error) {
	var out []Job
	err := s.db.From(jobsTable).
		Select("*,applications(*,freelancer:profiles!applications_freelancer_id_fkey(*))").
		Eq("client_id", clientID).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a new job posting. The server assigns id, timestamps, and
// the initial open status.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Job, error) {
	switch {
	case params.ClientID == "":
		return nil, errs.RequiredError("client_id")
	case params.Title == "":
		return nil, errs.RequiredError("title")
	case params.Description == "":
		return nil, errs.RequiredError("description")
	case params.Category == "":
		return nil, errs.RequiredError("category")
	case params.BudgetType != BudgetFixed && params.BudgetType != BudgetHourly:
		return nil, errs.RequiredError("budget_type")
	case params.BudgetAmount <= 0:
		return nil, errs.RequiredError("budget_amount")
	case len(params.Skills) == 0:
		return nil, errs.RequiredError("skills")
	}

	var job Job
	if err := s.db.From(jobsTable).Single().Insert(ctx, params, &job); err != nil {
		return nil, err
	}

	s.log.Info("job created", "job_id", job.ID, "client_id", job.ClientID)
	return &job, nil
}

// Update applies a partial merge to the job.
func (s *Service) Update(ctx context.Context, jobID string, fields map[string]any) (*Job, error) {
	var job Job
	err := s.db.From(jobsTable).
		Eq("id", jobID).
		Single().
		Update(ctx, fields, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Apply files an application against a job and returns it enriched with
// the parent job and the freelancer profile.
func (s *Service) Apply(ctx context.Context, params ApplyParams) (*Application, error) {
	switch {
	case params.JobID == "":
		return nil, errs.RequiredError("job_id")
	case params.FreelancerID == "":
		return nil, errs.RequiredError("freelancer_id")
	case params.Proposal == "":
		return nil, errs.RequiredError("proposal")
	case params.BidAmount <= 0:
		return nil, errs.RequiredError("bid_amount")
	}

	var application Application
	err := s.db.From(applicationsTable).
		Select("*,job:jobs(*),freelancer:profiles!applications_freelancer_id_fkey(*)").
		Single().
		Insert(ctx, params, &application)
	if err != nil {
		return nil, err
	}

	s.log.Info("application filed", "application_id", application.ID, "job_id", application.JobID)
	return &application, nil
}

// ListApplicationsByFreelancer returns the freelancer's applications,
// newest first, each enriched with the job and the job's client profile.
func (s *Service) ListApplicationsByFreelancer(ctx context.Context, freelancerID string) ([]Application, error) {
	var out []Application
	err := s.db.From(applicationsTable).
		Select("*,job:jobs(*,client:profiles!jobs_client_id_fkey(*))").
		Eq("freelancer_id", freelancerID).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetApplicationStatus updates the application. Accepting additionally
// drives the parent job to in_progress with a second, independent write:
// when that write fails, the accepted application is still returned and
// the job is left behind; callers observe the job status catching up with
// the acceptance rather than changing atomically with it.
func (s *Service) SetApplicationStatus(ctx context.Context, applicationID string, status ApplicationStatus) (*Application, error) {
	var application Application
	err := s.db.From(applicationsTable).
		Eq("id", applicationID).
		Single().
		Update(ctx, map[string]any{"status": status}, &application)
	if err != nil {
		return nil, err
	}

	if status == ApplicationAccepted {
		err := s.db.From(jobsTable).
			Eq("id", application.JobID).
			Update(ctx, map[string]any{"status": StatusInProgress}, nil)
		if err != nil {
			s.log.Warn("job status cascade failed after acceptance",
				"application_id", applicationID,
				"job_id", application.JobID,
				"error", err)
		}
	}

	return &application, nil
}
