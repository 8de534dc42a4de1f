package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"referral-chat/internal/domain"
	"referral-chat/internal/email"
	"referral-chat/internal/repository"
)

type flakyMessenger struct {
	inner  SystemMessenger
	mu     sync.Mutex
	failOn map[string]int
	sent   []string
}

func (m *flakyMessenger) SendSystemMessage(ctx context.Context, conversationID, text string) (domain.Message, error) {
	m.mu.Lock()
	if m.failOn[text] > 0 {
		m.failOn[text]--
		m.mu.Unlock()
		return domain.Message{}, errors.New("send failed")
	}
	m.sent = append(m.sent, text)
	m.mu.Unlock()
	return m.inner.SendSystemMessage(ctx, conversationID, text)
}

func (m *flakyMessenger) count(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s == text {
			n++
		}
	}
	return n
}

func (m *flakyMessenger) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type countingAssessmentRepo struct {
	*repository.MemoryAssessmentRepository
	mu     sync.Mutex
	writes int
}

func (r *countingAssessmentRepo) SaveResult(ctx context.Context, result domain.AssessmentResult) (bool, error) {
	created, err := r.MemoryAssessmentRepository.SaveResult(ctx, result)
	if created {
		r.mu.Lock()
		r.writes++
		r.mu.Unlock()
	}
	return created, err
}

// failingEventRepo falla los primeros appends de ciertos tipos de evento y,
// opcionalmente, todo ReleaseDispatch.
type failingEventRepo struct {
	*countingAssessmentRepo
	mu         sync.Mutex
	failKind   map[string]int
	releaseErr error
}

func (r *failingEventRepo) AppendEvent(ctx context.Context, event domain.AssessmentEvent) error {
	r.mu.Lock()
	if r.failKind[event.Kind] > 0 {
		r.failKind[event.Kind]--
		r.mu.Unlock()
		return errors.New("store unavailable")
	}
	r.mu.Unlock()
	return r.countingAssessmentRepo.AppendEvent(ctx, event)
}

func (r *failingEventRepo) ReleaseDispatch(ctx context.Context, eventID string) error {
	if r.releaseErr != nil {
		return r.releaseErr
	}
	return r.countingAssessmentRepo.ReleaseDispatch(ctx, eventID)
}

type recordingObserver struct {
	mu      sync.Mutex
	notices []AssessmentNotice
}

func (o *recordingObserver) Notify(n AssessmentNotice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, n)
}

func (o *recordingObserver) kinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.notices))
	for _, n := range o.notices {
		out = append(out, n.Kind)
	}
	return out
}

type mockAlertSender struct {
	mu     sync.Mutex
	alerts []email.UrgentAlert
	to     []string
}

func (m *mockAlertSender) SendUrgentAssessmentAlert(_ context.Context, to string, alert email.UrgentAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	m.alerts = append(m.alerts, alert)
	return nil
}

func scenarioScript(t *testing.T) *AssessmentScript {
	t.Helper()
	script, err := NewAssessmentScript("test", []domain.AssessmentQuestion{
		{ID: "Q1", Prompt: "Question one?"},
		{ID: "Q2", Prompt: "Question two?", SkipLogic: &domain.SkipLogic{OnAnswer: "no", SkipTo: "Q4"}},
		{ID: "Q3", Prompt: "Question three?"},
		{ID: "Q4", Prompt: "Question four?"},
	}, []string{"Q3"})
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	return script
}

type engineFixture struct {
	engine    *AssessmentEngine
	messages  *MessageService
	messenger *flakyMessenger
	store     *countingAssessmentRepo
	observer  *recordingObserver
	conv      domain.Conversation
}

func newEngineFixture(t *testing.T, script *AssessmentScript) engineFixture {
	t.Helper()
	mf := newMessageFixture(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	var (
		mu   sync.Mutex
		tick int
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	mf.svc.now = clock

	f := engineFixture{
		messages:  mf.svc,
		messenger: &flakyMessenger{inner: mf.svc, failOn: make(map[string]int)},
		store:     &countingAssessmentRepo{MemoryAssessmentRepository: repository.NewMemoryAssessmentRepository()},
		observer:  &recordingObserver{},
	}
	f.engine = NewAssessmentEngine(nil, script, f.store, mf.conversations, f.messenger, f.observer, 0)
	f.engine.now = clock

	conv, err := mf.svc.GetOrCreateConversation(context.Background(), student, "")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	f.conv = conv
	return f
}

func TestAssessmentScenario_SkipLogic(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	ctx := context.Background()

	session, err := f.engine.Start(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.State != domain.AssessmentAwaitingAnswer || session.Cursor != 0 {
		t.Fatalf("expected awaiting answer at 0, got %s/%d", session.State, session.Cursor)
	}

	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m1", "yes"); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m2", " No "); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	session, _ = f.engine.Session(ctx, f.conv.ID)
	if len(session.Responses) != 2 {
		t.Fatalf("expected 2 responses after Q2, got %d", len(session.Responses))
	}
	if session.Cursor != 3 || session.State != domain.AssessmentAwaitingAnswer {
		t.Fatalf("expected awaiting Q4, got %s/%d", session.State, session.Cursor)
	}
	if f.messenger.count("Question three?") != 0 {
		t.Fatalf("expected Q3 never dispatched")
	}
	if session.Dispatched[2] {
		t.Fatalf("expected index 2 absent from dispatched set")
	}

	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m3", "yes"); err != nil {
		t.Fatalf("answer q4: %v", err)
	}
	session, _ = f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentCompleted {
		t.Fatalf("expected completed, got %s", session.State)
	}

	want := []string{"Question one?", "Question two?", "Question four?", scenarioScript(t).summaryText()}
	got := f.messenger.sentTexts()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected system messages:\n got %q\nwant %q", got, want)
	}

	result, err := f.engine.Result(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Answered != 3 || result.YesCount != 2 {
		t.Fatalf("unexpected tally %+v", result)
	}
	if result.Severity != domain.SeverityHigh || result.Color != domain.ColorOrange {
		t.Fatalf("expected high/orange, got %s/%s", result.Severity, result.Color)
	}

	conv, _ := f.messages.conversations.GetByID(ctx, f.conv.ID)
	if conv.AssessmentSeverity != domain.SeverityHigh || conv.AssessmentColor != domain.ColorOrange {
		t.Fatalf("expected cached severity on conversation, got %+v", conv)
	}

	kinds := f.observer.kinds()
	if kinds[len(kinds)-1] != NoticeAssessmentCompleted {
		t.Fatalf("expected completion notice last, got %v", kinds)
	}
}

func TestAssessmentDispatch_TwiceSendsOnce(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	ctx := context.Background()

	if _, err := f.engine.Start(ctx, f.conv.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.engine.Dispatch(ctx, f.conv.ID, 0); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if n := f.messenger.count("Question one?"); n != 1 {
		t.Fatalf("expected Q1 sent once, got %d", n)
	}

	if err := f.engine.Dispatch(ctx, f.conv.ID, 2); err != nil {
		t.Fatalf("stale dispatch: %v", err)
	}
	if n := f.messenger.count("Question three?"); n != 0 {
		t.Fatalf("expected stale index ignored, got %d sends", n)
	}
}

func TestAssessmentSubmit_InvalidAnswerDoesNotAdvance(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	ctx := context.Background()
	_, _ = f.engine.Start(ctx, f.conv.ID)

	for _, raw := range []string{"maybe", "", "yess", "y"} {
		err := f.engine.SubmitAnswer(ctx, f.conv.ID, "bad-"+raw, raw)
		if !errors.Is(err, ErrInvalidAnswer) || !errors.Is(err, ErrValidation) {
			t.Fatalf("answer %q: expected ErrInvalidAnswer, got %v", raw, err)
		}
	}

	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.Cursor != 0 || len(session.Responses) != 0 {
		t.Fatalf("expected no progress, got cursor=%d responses=%d", session.Cursor, len(session.Responses))
	}
	if session.State != domain.AssessmentAwaitingAnswer {
		t.Fatalf("expected awaiting answer, got %s", session.State)
	}
	sent := f.messenger.sentTexts()
	last := sent[len(sent)-1]
	if !strings.Contains(last, `"yes" or "no"`) || !strings.Contains(last, "Question one?") {
		t.Fatalf("expected validation prompt repeating Q1, got %q", last)
	}
	if n := f.messenger.count("Question one?"); n != 1 {
		t.Fatalf("expected plain Q1 sent once, got %d", n)
	}

	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "ok", "YES"); err != nil {
		t.Fatalf("valid answer: %v", err)
	}
	session, _ = f.engine.Session(ctx, f.conv.ID)
	if session.Cursor != 1 || len(session.Responses) != 1 {
		t.Fatalf("expected advance to 1, got cursor=%d", session.Cursor)
	}
}

func TestAssessmentComplete_OnceAfterSendFailure(t *testing.T) {
	script := scenarioScript(t)
	f := newEngineFixture(t, script)
	f.messenger.failOn[script.summaryText()] = 1
	ctx := context.Background()

	_, _ = f.engine.Start(ctx, f.conv.ID)
	for i, raw := range []string{"yes", "yes", "no", "no"} {
		if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m"+string(rune('a'+i)), raw); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingDispatch || session.Cursor != script.Len() {
		t.Fatalf("expected run parked before completion, got %s/%d", session.State, session.Cursor)
	}
	if f.messenger.count(script.summaryText()) != 0 {
		t.Fatalf("expected no summary yet")
	}

	for i := 0; i < 2; i++ {
		session, err := f.engine.Resume(ctx, f.conv.ID)
		if err != nil {
			t.Fatalf("resume %d: %v", i, err)
		}
		if session.State != domain.AssessmentCompleted {
			t.Fatalf("expected completed after resume, got %s", session.State)
		}
	}
	if n := f.messenger.count(script.summaryText()); n != 1 {
		t.Fatalf("expected one summary, got %d", n)
	}
	if f.store.writes != 1 {
		t.Fatalf("expected one result write, got %d", f.store.writes)
	}
}

func TestAssessmentDispatch_SendFailureReleasesClaim(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	f.messenger.failOn["Question one?"] = 1
	ctx := context.Background()

	if _, err := f.engine.Start(ctx, f.conv.ID); err == nil {
		t.Fatalf("expected start to report dispatch failure")
	}
	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingDispatch || session.Dispatched[0] {
		t.Fatalf("expected unclaimed index 0, got %+v", session)
	}

	session, err := f.engine.Resume(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if session.State != domain.AssessmentAwaitingAnswer {
		t.Fatalf("expected awaiting answer, got %s", session.State)
	}
	if n := f.messenger.count("Question one?"); n != 1 {
		t.Fatalf("expected Q1 sent once, got %d", n)
	}
}

func TestAssessmentComplete_RetriesAfterCompletedEventFailure(t *testing.T) {
	script := scenarioScript(t)
	f := newEngineFixture(t, script)
	repo := &failingEventRepo{countingAssessmentRepo: f.store, failKind: map[string]int{domain.EventCompleted: 1}}
	f.engine.store = repo
	ctx := context.Background()

	if _, err := f.engine.Start(ctx, f.conv.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, raw := range []string{"yes", "yes", "no", "no"} {
		if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m"+string(rune('a'+i)), raw); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingDispatch || session.Cursor != script.Len() {
		t.Fatalf("expected run parked at the summary, got %s/%d", session.State, session.Cursor)
	}
	if n := f.messenger.count(script.summaryText()); n != 1 {
		t.Fatalf("expected summary already sent once, got %d", n)
	}

	for i := 0; i < 2; i++ {
		session, err := f.engine.Resume(ctx, f.conv.ID)
		if err != nil {
			t.Fatalf("resume %d: %v", i, err)
		}
		if session.State != domain.AssessmentCompleted {
			t.Fatalf("resume %d: expected completed, got %s", i, session.State)
		}
	}
	if n := f.messenger.count(script.summaryText()); n != 1 {
		t.Fatalf("expected one summary after retries, got %d", n)
	}
	if f.store.writes != 1 {
		t.Fatalf("expected one result write, got %d", f.store.writes)
	}
	if _, err := f.engine.Start(ctx, f.conv.ID); err != nil {
		t.Fatalf("expected a new run to be allowed after completion, got %v", err)
	}
}

func TestAssessmentDispatch_UnreleasedClaimIsRetried(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	repo := &failingEventRepo{countingAssessmentRepo: f.store, releaseErr: errors.New("release failed")}
	f.engine.store = repo
	f.messenger.failOn["Question one?"] = 1
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := f.engine.Start(ctx, f.conv.ID)
	if err == nil || !strings.Contains(err.Error(), "release failed") {
		t.Fatalf("expected start to surface the release failure, got %v", err)
	}
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected a store error in the chain, got %v", err)
	}

	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingDispatch || session.Dispatched[0] {
		t.Fatalf("expected unsent index 0 to stay pending, got %s %+v", session.State, session.Dispatched)
	}
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "early", "yes"); !errors.Is(err, ErrNotAwaitingAnswer) {
		t.Fatalf("expected answers rejected before the question is sent, got %v", err)
	}

	session, err = f.engine.Resume(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("resume within timeout: %v", err)
	}
	if session.State != domain.AssessmentAwaitingDispatch || f.messenger.count("Question one?") != 0 {
		t.Fatalf("expected claim in flight to block resend, got %s", session.State)
	}

	now = now.Add(f.engine.dispatchTimeout + time.Second)
	session, err = f.engine.Resume(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("resume after timeout: %v", err)
	}
	if session.State != domain.AssessmentAwaitingAnswer || !session.Dispatched[0] {
		t.Fatalf("expected Q1 sent on resume, got %s %+v", session.State, session.Dispatched)
	}
	if n := f.messenger.count("Question one?"); n != 1 {
		t.Fatalf("expected Q1 sent once, got %d", n)
	}
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m1", "yes"); err != nil {
		t.Fatalf("answer: %v", err)
	}
}

func TestAssessmentStart_Guards(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	ctx := context.Background()

	if _, err := f.engine.Start(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m0", "yes"); !errors.Is(err, ErrNoActiveAssessment) {
		t.Fatalf("expected ErrNoActiveAssessment, got %v", err)
	}
	if _, err := f.engine.Start(ctx, f.conv.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.engine.Start(ctx, f.conv.ID); !errors.Is(err, ErrAssessmentInProgress) {
		t.Fatalf("expected ErrAssessmentInProgress, got %v", err)
	}

	var nilEngine *AssessmentEngine
	if _, err := nilEngine.Start(ctx, f.conv.ID); !errors.Is(err, ErrAssessmentNotConfigured) {
		t.Fatalf("expected ErrAssessmentNotConfigured, got %v", err)
	}
}

func TestAssessmentHandleInbound_Routing(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	ctx := context.Background()
	_, _ = f.engine.Start(ctx, f.conv.ID)

	staffMsg, _ := f.messages.SendMessage(ctx, staff, f.conv.ID, "yes")
	if err := f.engine.HandleInbound(ctx, f.conv, staffMsg); err != nil {
		t.Fatalf("staff message: %v", err)
	}
	stale := domain.Message{
		ID:             "old",
		ConversationID: f.conv.ID,
		SenderID:       &student.UserID,
		Body:           "yes",
		CreatedAt:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := f.engine.HandleInbound(ctx, f.conv, stale); err != nil {
		t.Fatalf("stale message: %v", err)
	}
	unreadable := domain.Message{ID: "x", ConversationID: f.conv.ID, SenderID: &student.UserID, Body: domain.UndecryptableBody, DecryptFailed: true, CreatedAt: time.Now()}
	if err := f.engine.HandleInbound(ctx, f.conv, unreadable); err != nil {
		t.Fatalf("unreadable message: %v", err)
	}
	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.Cursor != 0 || len(session.Responses) != 0 {
		t.Fatalf("expected ignored messages, got cursor=%d", session.Cursor)
	}

	answer, _ := f.messages.SendMessage(ctx, student, f.conv.ID, "Yes")
	for i := 0; i < 2; i++ {
		if err := f.engine.HandleInbound(ctx, f.conv, answer); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	session, _ = f.engine.Session(ctx, f.conv.ID)
	if session.Cursor != 1 || len(session.Responses) != 1 {
		t.Fatalf("expected single answer consumed, got cursor=%d responses=%d", session.Cursor, len(session.Responses))
	}

	chatter, _ := f.messages.SendMessage(ctx, student, f.conv.ID, "hmm not sure")
	if err := f.engine.HandleInbound(ctx, f.conv, chatter); err != nil {
		t.Fatalf("invalid answers are swallowed, got %v", err)
	}
}

func TestAssessmentComplete_CriticalAlertsOnce(t *testing.T) {
	script := scenarioScript(t)
	f := newEngineFixture(t, script)
	alerts := &mockAlertSender{}
	f.engine.SetAlertSender(alerts, "duty@uni.test")
	ctx := context.Background()

	_, _ = f.engine.Start(ctx, f.conv.ID)
	for i, raw := range []string{"no", "yes", "yes", "no"} {
		if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "c"+string(rune('a'+i)), raw); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	_, _ = f.engine.Resume(ctx, f.conv.ID)

	result, err := f.engine.Result(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !result.RequiresImmediateAttention || result.Severity != domain.SeverityCritical || result.Color != domain.ColorRed {
		t.Fatalf("expected critical result, got %+v", result)
	}
	if len(alerts.alerts) != 1 || alerts.to[0] != "duty@uni.test" {
		t.Fatalf("expected one alert, got %+v", alerts.alerts)
	}
	if alerts.alerts[0].OwnerID != student.UserID {
		t.Fatalf("expected owner in alert, got %+v", alerts.alerts[0])
	}
}

func TestAssessmentPacing_DefersDispatch(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	var scheduled []func()
	f.engine.pacing = time.Second
	f.engine.after = func(d time.Duration, fn func()) func() bool {
		if d != time.Second {
			t.Errorf("expected pacing delay, got %v", d)
		}
		scheduled = append(scheduled, fn)
		return func() bool { return true }
	}
	ctx := context.Background()

	_, _ = f.engine.Start(ctx, f.conv.ID)
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m1", "yes"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if f.messenger.count("Question two?") != 0 {
		t.Fatalf("expected Q2 deferred")
	}
	session, _ := f.engine.Session(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingDispatch {
		t.Fatalf("expected awaiting dispatch, got %s", session.State)
	}
	if err := f.engine.SubmitAnswer(ctx, f.conv.ID, "m2", "yes"); !errors.Is(err, ErrNotAwaitingAnswer) {
		t.Fatalf("expected ErrNotAwaitingAnswer before dispatch, got %v", err)
	}

	if len(scheduled) != 1 {
		t.Fatalf("expected one scheduled dispatch, got %d", len(scheduled))
	}
	scheduled[0]()
	scheduled[0]()
	if n := f.messenger.count("Question two?"); n != 1 {
		t.Fatalf("expected Q2 sent once, got %d", n)
	}
}

func TestAssessmentClose_DropsPendingDispatch(t *testing.T) {
	f := newEngineFixture(t, scenarioScript(t))
	var (
		scheduled []func()
		stopped   int
	)
	f.engine.pacing = time.Second
	f.engine.after = func(_ time.Duration, fn func()) func() bool {
		scheduled = append(scheduled, fn)
		return func() bool { stopped++; return true }
	}
	ctx := context.Background()

	_, _ = f.engine.Start(ctx, f.conv.ID)
	_ = f.engine.SubmitAnswer(ctx, f.conv.ID, "m1", "yes")
	f.engine.Close()
	if stopped != 1 {
		t.Fatalf("expected pending timer stopped, got %d", stopped)
	}
	scheduled[0]()
	if f.messenger.count("Question two?") != 0 {
		t.Fatalf("expected no dispatch after close")
	}

	session, _ := f.engine.Resume(ctx, f.conv.ID)
	if session.State != domain.AssessmentAwaitingAnswer || session.Cursor != 1 {
		t.Fatalf("expected resume to dispatch Q2, got %s/%d", session.State, session.Cursor)
	}
}
