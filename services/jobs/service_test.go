package jobs

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/testutil"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

func newTestService(t *testing.T) (*Service, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend()
	t.Cleanup(backend.Close)

	db, err := supabase.New(supabase.Config{URL: backend.URL(), AnonKey: "test-anon-key"})
	require.NoError(t, err)
	return New(db, nil), backend
}

func TestListDecodesApplicationCount(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "jobs", http.StatusOK, `[
		{"id":"j1","client_id":"c1","title":"Build API","status":"open",
		 "client":{"id":"c1","first_name":"Ann","role":"client"},
		 "applications":[{"count":3}]},
		{"id":"j2","client_id":"c1","title":"Fix bug","status":"open",
		 "applications":[{"count":0}]}
	]`)

	out, err := svc.List(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, 3, out[0].ApplicationCount)
	assert.Equal(t, 0, out[1].ApplicationCount)
	require.NotNil(t, out[0].Client)
	assert.Equal(t, "Ann", out[0].Client.FirstName)
	// The count rows never surface as application rows.
	assert.Empty(t, out[0].Applications)

	reqs := backend.RequestsFor(http.MethodGet, "jobs")
	require.Len(t, reqs, 1)
	assert.Equal(t, "*,client:profiles!jobs_client_id_fkey(*),applications(count)",
		reqs[0].Query.Get("select"))
	assert.Equal(t, "created_at.desc", reqs[0].Query.Get("order"))
}

func TestListFilters(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "jobs", http.StatusOK, "[]")

	_, err := svc.List(context.Background(), Filters{
		Status:   StatusOpen,
		Category: "Development",
		Search:   "api",
	})
	require.NoError(t, err)

	q := backend.RequestsFor(http.MethodGet, "jobs")[0].Query
	assert.Equal(t, "eq.open", q.Get("status"))
	assert.Equal(t, "eq.Development", q.Get("category"))
	assert.Equal(t, "(title.ilike.*api*,description.ilike.*api*)", q.Get("or"))
}

func TestListAllCategoriesSentinel(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "jobs", http.StatusOK, "[]")

	_, err := svc.List(context.Background(), Filters{Category: AllCategories})
	require.NoError(t, err)

	q := backend.RequestsFor(http.MethodGet, "jobs")[0].Query
	assert.Empty(t, q.Get("category"))
}

func TestListByClientExpandsApplications(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "jobs", http.StatusOK, `[
		{"id":"j1","client_id":"c1","title":"Build API","status":"open",
		 "applications":[
			{"id":"a1","job_id":"j1","freelancer_id":"f1","status":"pending",
			 "freelancer":{"id":"f1","first_name":"Bea","role":"freelancer"}}
		 ]}
	]`)

	out, err := svc.ListByClient(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Applications, 1)
	require.NotNil(t, out[0].Applications[0].Freelancer)
	assert.Equal(t, "Bea", out[0].Applications[0].Freelancer.FirstName)

	q := backend.RequestsFor(http.MethodGet, "jobs")[0].Query
	assert.Equal(t, "eq.c1", q.Get("client_id"))
	assert.Equal(t, "*,applications(*,freelancer:profiles!applications_freelancer_id_fkey(*))",
		q.Get("select"))
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	valid := CreateParams{
		ClientID:     "c1",
		Title:        "Build API",
		Description:  "REST backend",
		Category:     "Development",
		BudgetType:   BudgetFixed,
		BudgetAmount: 500,
		Skills:       []string{"go"},
	}

	mutate := []struct {
		name string
		fn   func(*CreateParams)
	}{
		{"client_id", func(p *CreateParams) { p.ClientID = "" }},
		{"title", func(p *CreateParams) { p.Title = "" }},
		{"description", func(p *CreateParams) { p.Description = "" }},
		{"category", func(p *CreateParams) { p.Category = "" }},
		{"budget_type", func(p *CreateParams) { p.BudgetType = "retainer" }},
		{"budget_amount", func(p *CreateParams) { p.BudgetAmount = 0 }},
		{"skills", func(p *CreateParams) { p.Skills = nil }},
	}
	for _, tc := range mutate {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.fn(&params)
			_, err := svc.Create(ctx, params)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreate(t *testing.T) {
	svc, backend := newTestService(t)

	job, err := svc.Create(context.Background(), CreateParams{
		ClientID:     "c1",
		Title:        "Build API",
		Description:  "REST backend",
		Category:     "Development",
		BudgetType:   BudgetHourly,
		BudgetAmount: 40,
		Skills:       []string{"go", "postgres"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "Build API", job.Title)

	reqs := backend.RequestsFor(http.MethodPost, "jobs")
	require.Len(t, reqs, 1)
	body := reqs[0].JSONBody()
	assert.Equal(t, "c1", body["client_id"])
	assert.Equal(t, "hourly", body["budget_type"])
	// Status is server-assigned, never sent by the caller.
	_, sent := body["status"]
	assert.False(t, sent)
}

func TestApply(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPost, "applications", http.StatusCreated, `
		{"id":"a1","job_id":"j1","freelancer_id":"f1","proposal":"I can do it",
		 "bid_amount":450,"status":"pending",
		 "job":{"id":"j1","title":"Build API"},
		 "freelancer":{"id":"f1","first_name":"Bea","role":"freelancer"}}`)

	app, err := svc.Apply(context.Background(), ApplyParams{
		JobID:        "j1",
		FreelancerID: "f1",
		Proposal:     "I can do it",
		BidAmount:    450,
	})
	require.NoError(t, err)
	assert.Equal(t, ApplicationPending, app.Status)
	require.NotNil(t, app.Job)
	assert.Equal(t, "Build API", app.Job.Title)

	reqs := backend.RequestsFor(http.MethodPost, "applications")
	require.Len(t, reqs, 1)
	assert.Equal(t, "*,job:jobs(*),freelancer:profiles!applications_freelancer_id_fkey(*)",
		reqs[0].Query.Get("select"))
}

func TestApplyDuplicate(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPost, "applications", http.StatusConflict,
		`{"code":"23505","message":"duplicate key value violates unique constraint"}`)

	_, err := svc.Apply(context.Background(), ApplyParams{
		JobID:        "j1",
		FreelancerID: "f1",
		Proposal:     "again",
		BidAmount:    450,
	})
	assert.True(t, errs.IsConflict(err))
}

func TestListApplicationsByFreelancer(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodGet, "applications", http.StatusOK, `[
		{"id":"a1","job_id":"j1","freelancer_id":"f1","status":"pending",
		 "job":{"id":"j1","title":"Build API",
			"client":{"id":"c1","first_name":"Ann","role":"client"}}}
	]`)

	out, err := svc.ListApplicationsByFreelancer(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Job)
	require.NotNil(t, out[0].Job.Client)
	assert.Equal(t, profiles.RoleClient, out[0].Job.Client.Role)

	q := backend.RequestsFor(http.MethodGet, "applications")[0].Query
	assert.Equal(t, "eq.f1", q.Get("freelancer_id"))
	assert.Equal(t, "*,job:jobs(*,client:profiles!jobs_client_id_fkey(*))", q.Get("select"))
}

func TestAcceptCascadesJobStatus(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPatch, "applications", http.StatusOK,
		`{"id":"a1","job_id":"j1","freelancer_id":"f1","status":"accepted"}`)

	app, err := svc.SetApplicationStatus(context.Background(), "a1", ApplicationAccepted)
	require.NoError(t, err)
	assert.Equal(t, ApplicationAccepted, app.Status)

	appReqs := backend.RequestsFor(http.MethodPatch, "applications")
	require.Len(t, appReqs, 1)
	assert.Equal(t, "eq.a1", appReqs[0].Query.Get("id"))
	assert.Equal(t, map[string]any{"status": "accepted"}, appReqs[0].JSONBody())

	jobReqs := backend.RequestsFor(http.MethodPatch, "jobs")
	require.Len(t, jobReqs, 1)
	assert.Equal(t, "eq.j1", jobReqs[0].Query.Get("id"))
	assert.Equal(t, map[string]any{"status": "in_progress"}, jobReqs[0].JSONBody())
}

func TestAcceptCascadeFailureStillReturnsApplication(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPatch, "applications", http.StatusOK,
		`{"id":"a1","job_id":"j1","freelancer_id":"f1","status":"accepted"}`)
	backend.Stub(http.MethodPatch, "jobs", http.StatusInternalServerError,
		`{"message":"db unavailable"}`)

	app, err := svc.SetApplicationStatus(context.Background(), "a1", ApplicationAccepted)
	require.NoError(t, err)
	assert.Equal(t, ApplicationAccepted, app.Status)

	// The job write was attempted and failed; the acceptance stands.
	require.Len(t, backend.RequestsFor(http.MethodPatch, "jobs"), 1)
}

func TestRejectDoesNotTouchJob(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPatch, "applications", http.StatusOK,
		`{"id":"a1","job_id":"j1","freelancer_id":"f1","status":"rejected"}`)

	app, err := svc.SetApplicationStatus(context.Background(), "a1", ApplicationRejected)
	require.NoError(t, err)
	assert.Equal(t, ApplicationRejected, app.Status)
	assert.Empty(t, backend.RequestsFor(http.MethodPatch, "jobs"))
}

func TestSetApplicationStatusMissing(t *testing.T) {
	svc, backend := newTestService(t)
	backend.Stub(http.MethodPatch, "applications", http.StatusNotAcceptable,
		`{"code":"PGRST116","message":"no rows"}`)

	_, err := svc.SetApplicationStatus(context.Background(), "missing", ApplicationAccepted)
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, backend.RequestsFor(http.MethodPatch, "jobs"))
}
