// Command seed loads a demo data set into the backend: two profiles, a
// job with an accepted application, a short conversation, and a pending
// payment. Intended for fresh development projects.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/telegig/marketplace/services/chat"
	"github.com/telegig/marketplace/services/jobs"
	"github.com/telegig/marketplace/services/payments"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Path to .env with SUPABASE_URL and SUPABASE_ANON_KEY")
		bucket  = flag.String("bucket", payments.DefaultBucket, "Storage bucket for payment files")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("load env (%s): %v (continuing with process env)", *envFile, err)
	}

	db, err := supabase.New(supabase.Config{
		URL:     os.Getenv("SUPABASE_URL"),
		AnonKey: os.Getenv("SUPABASE_ANON_KEY"),
	})
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}

	ctx := context.Background()

	profileSvc := profiles.New(db, nil)
	jobSvc := jobs.New(db, nil)
	chatSvc := chat.New(db, nil, nil)
	paymentSvc := payments.New(db, *bucket, nil)

	client, err := profileSvc.Upsert(ctx, profiles.UpsertParams{
		TelegramID: 100000001,
		Username:   "demo_client",
		FirstName:  "Dana",
		Role:       profiles.RoleClient,
	})
	if err != nil {
		log.Fatalf("seed client profile: %v", err)
	}

	freelancer, err := profileSvc.Upsert(ctx, profiles.UpsertParams{
		TelegramID:  100000002,
		Username:    "demo_freelancer",
		FirstName:   "Felix",
		Role:        profiles.RoleFreelancer,
		Title:       "Backend developer",
		Description: "Go and Postgres, seven years in.",
		Skills:      []string{"go", "postgres", "docker"},
		HourlyRate:  45,
	})
	if err != nil {
		log.Fatalf("seed freelancer profile: %v", err)
	}

	job, err := jobSvc.Create(ctx, jobs.CreateParams{
		ClientID:     client.ID,
		Title:        "Build a REST API for an inventory app",
		Description:  "CRUD endpoints on Postgres with auth, containerized.",
		Category:     "Development",
		BudgetType:   jobs.BudgetFixed,
		BudgetAmount: 1200,
		Skills:       []string{"go", "postgres"},
	})
	if err != nil {
		log.Fatalf("seed job: %v", err)
	}

	application, err := jobSvc.Apply(ctx, jobs.ApplyParams{
		JobID:             job.ID,
		FreelancerID:      freelancer.ID,
		Proposal:          "I have shipped three similar APIs; estimate two weeks.",
		BidAmount:         1100,
		EstimatedDuration: "2 weeks",
	})
	if err != nil {
		log.Fatalf("seed application: %v", err)
	}

	if _, err := jobSvc.SetApplicationStatus(ctx, application.ID, jobs.ApplicationAccepted); err != nil {
		log.Fatalf("accept application: %v", err)
	}

	messages := []chat.SendParams{
		{JobID: job.ID, SenderID: client.ID, ReceiverID: freelancer.ID, Content: "Hi Felix, when can you start?"},
		{JobID: job.ID, SenderID: freelancer.ID, ReceiverID: client.ID, Content: "Monday. I'll send a schema draft first."},
	}
	for _, m := range messages {
		if _, err := chatSvc.Send(ctx, m); err != nil {
			log.Fatalf("seed message: %v", err)
		}
	}

	payment, err := paymentSvc.Create(ctx, payments.CreateParams{
		JobID:         job.ID,
		ApplicationID: application.ID,
		ClientID:      client.ID,
		FreelancerID:  freelancer.ID,
		Amount:        1100,
	})
	if err != nil {
		log.Fatalf("seed payment: %v", err)
	}

	log.Printf("seeded: job %s, application %s, payment %s", job.ID, application.ID, payment.ID)
}
