package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"referral-chat/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestMemoryConversationRepository_OnePerOwner(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, domain.Conversation{ID: "c1", OwnerID: "s1", LastActivityAt: now, CreatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.Conversation{ID: "c2", OwnerID: "s1", LastActivityAt: now, CreatedAt: now}); err != nil {
		t.Fatalf("second create should be a no-op, got %v", err)
	}
	got, err := repo.FindByOwner(ctx, "s1")
	if err != nil || got.ID != "c1" {
		t.Fatalf("expected c1, got %+v, %v", got, err)
	}
	if _, err := repo.GetByID(ctx, "c2"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for discarded insert, got %v", err)
	}
}

func TestMemoryConversationRepository_ListRecentAndTouch(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()
	base := time.Now().UTC()
	_ = repo.Create(ctx, domain.Conversation{ID: "c1", OwnerID: "s1", LastActivityAt: base})
	_ = repo.Create(ctx, domain.Conversation{ID: "c2", OwnerID: "s2", LastActivityAt: base.Add(time.Minute)})

	_ = repo.Touch(ctx, "c1", base.Add(2*time.Minute))
	_ = repo.Touch(ctx, "c2", base)

	list, _ := repo.ListRecent(ctx, 10)
	if len(list) != 2 || list[0].ID != "c1" {
		t.Fatalf("expected c1 first after touch, got %+v", list)
	}
	if !list[1].LastActivityAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("touch must not move last activity backwards")
	}
	if list, _ := repo.ListRecent(ctx, 1); len(list) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(list))
	}
}

func TestMemoryMessageRepository_MarkReadAndCount(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = repo.Create(ctx, domain.Message{ID: "m1", ConversationID: "c1", SenderID: strPtr("student"), Body: "x", CreatedAt: now})
	_ = repo.Create(ctx, domain.Message{ID: "m2", ConversationID: "c1", SenderID: strPtr("staff"), Body: "y", CreatedAt: now.Add(time.Second)})
	_ = repo.Create(ctx, domain.Message{ID: "m3", ConversationID: "c1", Body: "system", CreatedAt: now.Add(2 * time.Second)})
	_ = repo.Create(ctx, domain.Message{ID: "m4", ConversationID: "c2", SenderID: strPtr("staff"), Body: "z", CreatedAt: now})

	if n, _ := repo.CountUnread(ctx, "c1", "student"); n != 2 {
		t.Fatalf("expected 2 unread for student, got %d", n)
	}
	n, err := repo.MarkRead(ctx, "c1", "student", now)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows marked, got %d, %v", n, err)
	}
	own, _ := repo.GetByID(ctx, "m1")
	if own.ReadAt != nil {
		t.Fatalf("reader's own message must not be marked read")
	}
	if n, _ := repo.MarkRead(ctx, "c1", "student", now.Add(time.Minute)); n != 0 {
		t.Fatalf("expected idempotent mark read, got %d", n)
	}
	m2, _ := repo.GetByID(ctx, "m2")
	if m2.ReadAt == nil || !m2.ReadAt.Equal(now) {
		t.Fatalf("expected read_at preserved from first mark, got %v", m2.ReadAt)
	}
	if n, _ := repo.CountUnread(ctx, "c1", "staff"); n != 1 {
		t.Fatalf("expected staff to see student's message unread, got %d", n)
	}
}

func TestMemoryAssessmentRepository_DispatchOncePerRun(t *testing.T) {
	repo := NewMemoryAssessmentRepository()
	ctx := context.Background()

	first := domain.AssessmentEvent{ID: "e1", ConversationID: "c1", RunID: "r1", Kind: domain.EventDispatched, QuestionIndex: 0}
	if err := repo.AppendEvent(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	dup := domain.AssessmentEvent{ID: "e2", ConversationID: "c1", RunID: "r1", Kind: domain.EventDispatched, QuestionIndex: 0}
	if err := repo.AppendEvent(ctx, dup); !errors.Is(err, ErrDuplicateDispatch) {
		t.Fatalf("expected ErrDuplicateDispatch, got %v", err)
	}
	other := domain.AssessmentEvent{ID: "e3", ConversationID: "c1", RunID: "r2", Kind: domain.EventDispatched, QuestionIndex: 0}
	if err := repo.AppendEvent(ctx, other); err != nil {
		t.Fatalf("other run must not collide, got %v", err)
	}

	if err := repo.ReleaseDispatch(ctx, "e1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := repo.AppendEvent(ctx, dup); err != nil {
		t.Fatalf("expected claim after release, got %v", err)
	}

	answer := domain.AssessmentEvent{ID: "e4", ConversationID: "c1", RunID: "r1", Kind: domain.EventAnswered, QuestionIndex: 0, Answer: "yes"}
	if err := repo.AppendEvent(ctx, answer); err != nil {
		t.Fatalf("answer: %v", err)
	}
	answer.ID = "e5"
	if err := repo.AppendEvent(ctx, answer); !errors.Is(err, ErrDuplicateAnswer) {
		t.Fatalf("expected ErrDuplicateAnswer, got %v", err)
	}
}

func TestMemoryAssessmentRepository_ResultsAndRuns(t *testing.T) {
	repo := NewMemoryAssessmentRepository()
	ctx := context.Background()

	if _, err := repo.LatestRunID(ctx, "c1"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	_ = repo.AppendEvent(ctx, domain.AssessmentEvent{ID: "e1", ConversationID: "c1", RunID: "r1", Kind: domain.EventStarted})
	_ = repo.AppendEvent(ctx, domain.AssessmentEvent{ID: "e2", ConversationID: "c1", RunID: "r2", Kind: domain.EventStarted})
	if run, _ := repo.LatestRunID(ctx, "c1"); run != "r2" {
		t.Fatalf("expected latest run r2, got %q", run)
	}

	created, err := repo.SaveResult(ctx, domain.AssessmentResult{ID: "res1", RunID: "r1"})
	if err != nil || !created {
		t.Fatalf("expected created result, got %v, %v", created, err)
	}
	created, err = repo.SaveResult(ctx, domain.AssessmentResult{ID: "res2", RunID: "r1"})
	if err != nil || created {
		t.Fatalf("expected second save to be ignored, got %v, %v", created, err)
	}
	got, _ := repo.GetResult(ctx, "r1")
	if got.ID != "res1" {
		t.Fatalf("expected first result kept, got %q", got.ID)
	}
}
