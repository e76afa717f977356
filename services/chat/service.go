// Package chat provides per-job message access and the realtime
// new-message subscription.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

const table = "messages"

// profileExpansion joins the sender and receiver profiles onto a message.
const profileExpansion = "*,sender:profiles!messages_sender_id_fkey(*),receiver:profiles!messages_receiver_id_fkey(*)"

// MessageType distinguishes plain text from file-backed messages.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// Message is one chat message exchanged on a job.
type Message struct {
	ID          string      `json:"id"`
	JobID       string      `json:"job_id"`
	SenderID    string      `json:"sender_id"`
	ReceiverID  string      `json:"receiver_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	FileURL     string      `json:"file_url,omitempty"`
	IsRead      bool        `json:"is_read"`
	CreatedAt   time.Time   `json:"created_at"`

	// Expansions.
	Sender   *profiles.Profile `json:"sender,omitempty"`
	Receiver *profiles.Profile `json:"receiver,omitempty"`
}

// SendParams is the writable field set for a new message.
type SendParams struct {
	JobID       string      `json:"job_id"`
	SenderID    string      `json:"sender_id"`
	ReceiverID  string      `json:"receiver_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type,omitempty"`
	FileURL     string      `json:"file_url,omitempty"`
}

// Service provides message access.
type Service struct {
	db  *supabase.Client
	rt  *supabase.Realtime
	log *logger.Logger
}

// New creates a chat service. rt may be nil when realtime subscriptions
// are not needed; Subscribe then fails with a configuration error.
func New(db *supabase.Client, rt *supabase.Realtime, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("chat")
	}
	return &Service{db: db, rt: rt, log: log}
}

// ListForJob returns the job's messages in ascending creation-time order,
// each enriched with sender and receiver profiles.
func (s *Service) ListForJob(ctx context.Context, jobID string) ([]Message, error) {
	var out []Message
	err := s.db.From(table).
		Select(profileExpansion).
		Eq("job_id", jobID).
		Order("created_at", true).
		Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Send appends a message to the job's conversation. The type defaults to
// text. The returned row is enriched with both profiles.
func (s *Service) Send(ctx context.Context, params SendParams) (*Message, error) {
	switch {
	case params.JobID == "":
		return nil, errs.RequiredError("job_id")
	case params.SenderID == "":
		return nil, errs.RequiredError("sender_id")
	case params.ReceiverID == "":
		return nil, errs.RequiredError("receiver_id")
	case params.Content == "":
		return nil, errs.RequiredError("content")
	}
	if params.MessageType == "" {
		params.MessageType = TypeText
	}

	var msg Message
	err := s.db.From(table).
		Select(profileExpansion).
		Single().
		Insert(ctx, params, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead flags every message in the job addressed to the user as read.
// Zero matching rows is a no-op, not an error; repeating the call changes
// nothing.
func (s *Service) MarkRead(ctx context.Context, jobID, userID string) error {
	return s.db.From(table).
		Eq("job_id", jobID).
		Eq("receiver_id", userID).
		Update(ctx, map[string]any{"is_read": true}, nil)
}

// UnreadCount returns how many messages addressed to the user are unread,
// across all jobs.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.db.From(table).
		Eq("receiver_id", userID).
		Eq("is_read", false).
		Count(ctx)
}

// Subscribe opens a live channel for new messages on the job. onMessage
// runs once per inserted row, in arrival order, never concurrently with
// itself, until the returned subscription is released. A message sent
// locally also arrives through the subscription; callers that append
// optimistically must deduplicate by id.
func (s *Service) Subscribe(ctx context.Context, jobID string, onMessage func(Message)) (*supabase.Subscription, error) {
	if s.rt == nil {
		return nil, errs.NewConfigurationError("realtime", "not configured")
	}

	return s.rt.SubscribeInserts(ctx, table, "job_id=eq."+jobID, func(record json.RawMessage) {
		var msg Message
		if err := json.Unmarshal(record, &msg); err != nil {
			s.log.Warn("dropping undecodable realtime message", "job_id", jobID, "error", err)
			return
		}
		onMessage(msg)
	})
}
