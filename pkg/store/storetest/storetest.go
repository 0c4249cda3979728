// Package storetest provides an in-memory stand-in for the persistence layer.
// Services consume narrow interfaces; the single Store here satisfies all of
// them so unit tests run without Postgres. Semantics mirror the SQL layer:
// transition guards, idempotency sentinels, FIFO leasing with per-case
// running exclusion.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
)

// Store is the in-memory fake. Zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	// Now lets tests pin the clock. Defaults to time.Now.
	Now func() time.Time

	cases       map[string]*models.Case
	casesByOrig map[string]string // room1 origin event id -> case id

	jobs      []*models.Job
	nextJobID int64

	events      []models.CaseEvent
	authEvents  []models.AuthEvent
	messages    []models.CaseMessage
	transcripts []models.Transcript
	nextRowID   int64

	checkpoints []*models.ReactionCheckpoint

	users  map[string]*models.User
	tokens []*models.AuthToken

	prompts map[string]*models.PromptTemplate
}

// New creates an empty fake store.
func New() *Store {
	return &Store{
		Now:         time.Now,
		cases:       map[string]*models.Case{},
		casesByOrig: map[string]string{},
		users:       map[string]*models.User{},
		prompts:     map[string]*models.PromptTemplate{},
	}
}

func (s *Store) nextRow() int64 {
	s.nextRowID++
	return s.nextRowID
}

// ---- cases ----

func (s *Store) Create(ctx context.Context, params models.NewCaseParams) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The SQL schema keys idempotency on the origin event id alone.
	if _, dup := s.casesByOrig[params.Room1OriginEventID]; dup {
		return nil, store.ErrDuplicateOriginEvent
	}
	now := s.Now()
	c := &models.Case{
		ID:                 params.CaseID,
		Status:             lifecycle.StatusR1AckProcessing,
		Room1OriginRoomID:  params.Room1OriginRoomID,
		Room1OriginEventID: params.Room1OriginEventID,
		Room1SenderUserID:  params.Room1SenderUserID,
		PDFSourceURI:       params.PDFSourceURI,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.cases[c.ID] = c
	s.casesByOrig[params.Room1OriginEventID] = c.ID
	cp := *c
	return &cp, nil
}

func (s *Store) Get(ctx context.Context, caseID string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) mutate(caseID string, to lifecycle.Status, apply func(c *models.Case)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return store.ErrNotFound
	}
	if err := lifecycle.AssertTransition(c.Status, to); err != nil {
		return err
	}
	if apply != nil {
		apply(c)
	}
	c.Status = to
	c.UpdatedAt = s.Now()
	return nil
}

func (s *Store) SetStatusWithTransition(ctx context.Context, caseID string, to lifecycle.Status) error {
	return s.mutate(caseID, to, nil)
}

func (s *Store) StorePDFExtraction(ctx context.Context, caseID, extractedText, recordNumber string) error {
	return s.mutate(caseID, lifecycle.StatusExtracting, func(c *models.Case) {
		c.ExtractedText = &extractedText
		c.AgencyRecordNumber = &recordNumber
	})
}

func (s *Store) StoreLLM1Artifacts(ctx context.Context, caseID string, structured json.RawMessage) error {
	return s.mutate(caseID, lifecycle.StatusLLMStruct, func(c *models.Case) {
		c.StructuredData = structured
	})
}

func (s *Store) StoreSuggestedAction(ctx context.Context, caseID string, action json.RawMessage) error {
	return s.mutate(caseID, lifecycle.StatusLLMSuggest, func(c *models.Case) {
		c.SuggestedAction = action
	})
}

func (s *Store) RecordDoctorDecision(ctx context.Context, caseID string, decision models.DoctorDecision, support models.SupportFlag, reason *string) error {
	to := lifecycle.StatusDoctorAccepted
	if decision == models.DoctorDeny {
		to = lifecycle.StatusDoctorDenied
	}
	return s.mutate(caseID, to, func(c *models.Case) {
		now := s.Now()
		c.DoctorDecision = &decision
		c.DoctorSupport = &support
		c.DoctorReason = reason
		c.DoctorDecidedAt = &now
	})
}

func (s *Store) RecordSchedulerOutcome(ctx context.Context, caseID string, outcome models.SchedulerOutcome) error {
	to := lifecycle.StatusApptConfirmed
	if outcome.Status == models.AppointmentDenied {
		to = lifecycle.StatusApptDenied
	}
	return s.mutate(caseID, to, func(c *models.Case) {
		now := s.Now()
		st := outcome.Status
		c.AppointmentStatus = &st
		c.AppointmentAt = outcome.At
		c.AppointmentLocation = outcome.Location
		c.AppointmentInstructions = outcome.Instructions
		c.AppointmentReason = outcome.Reason
		c.AppointmentDecidedAt = &now
	})
}

func (s *Store) SetRoom1FinalReply(ctx context.Context, caseID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return store.ErrNotFound
	}
	c.Room1FinalReplyEventID = &eventID
	c.UpdatedAt = s.Now()
	return nil
}

func (s *Store) MarkCleanupCompleted(ctx context.Context, caseID string) error {
	return s.mutate(caseID, lifecycle.StatusCleaned, nil)
}

func (s *Store) MarkFailed(ctx context.Context, caseID string) error {
	return s.mutate(caseID, lifecycle.StatusFailed, nil)
}

// ---- jobs ----

func (s *Store) Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runAfter.IsZero() {
		runAfter = s.Now()
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	s.nextJobID++
	now := s.Now()
	j := &models.Job{
		ID:        s.nextJobID,
		CaseID:    caseID,
		Type:      jobType,
		Payload:   payload,
		Status:    models.JobQueued,
		RunAfter:  runAfter,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs = append(s.jobs, j)
	cp := *j
	return &cp, nil
}

func (s *Store) Lease(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	running := map[string]bool{}
	for _, j := range s.jobs {
		if j.Status == models.JobRunning && j.CaseID != nil {
			running[*j.CaseID] = true
		}
	}
	for _, j := range s.jobs {
		if j.Status != models.JobQueued || j.RunAfter.After(now) {
			continue
		}
		if j.CaseID != nil && running[*j.CaseID] {
			continue
		}
		j.Status = models.JobRunning
		j.UpdatedAt = now
		cp := *j
		return &cp, nil
	}
	return nil, store.ErrNoJobsAvailable
}

func (s *Store) findRunning(jobID int64) (*models.Job, error) {
	for _, j := range s.jobs {
		if j.ID == jobID {
			if j.Status != models.JobRunning {
				return nil, store.ErrInvalidJobState
			}
			return j, nil
		}
	}
	return nil, store.ErrInvalidJobState
}

func (s *Store) AckDone(ctx context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.findRunning(jobID)
	if err != nil {
		return err
	}
	j.Status = models.JobDone
	j.UpdatedAt = s.Now()
	return nil
}

func (s *Store) AckRetry(ctx context.Context, jobID int64, lastError string, backoff time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.findRunning(jobID)
	if err != nil {
		return err
	}
	j.Status = models.JobQueued
	j.Attempts++
	j.RunAfter = s.Now().Add(backoff)
	j.LastError = &lastError
	j.UpdatedAt = s.Now()
	return nil
}

func (s *Store) AckFailed(ctx context.Context, jobID int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.findRunning(jobID)
	if err != nil {
		return err
	}
	j.Status = models.JobFailed
	j.LastError = &lastError
	j.UpdatedAt = s.Now()
	return nil
}

func (s *Store) RequeueRunning(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == models.JobRunning {
			j.Status = models.JobQueued
			j.UpdatedAt = s.Now()
			n++
		}
	}
	return n, nil
}

func (s *Store) Depth(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var depth int
	for _, j := range s.jobs {
		if j.Status == models.JobQueued && !j.RunAfter.After(now) {
			depth++
		}
	}
	return depth, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[models.JobStatus]int{}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// Jobs returns a snapshot of every job, ordered by id. Test helper.
func (s *Store) Jobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ---- journal ----

func (s *Store) AppendCaseEvent(ctx context.Context, event models.CaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextRow()
	if event.Payload == nil {
		event.Payload = json.RawMessage(`{}`)
	}
	event.CapturedAt = s.Now()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) AppendAuthEvent(ctx context.Context, event models.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextRow()
	if event.Payload == nil {
		event.Payload = json.RawMessage(`{}`)
	}
	event.CapturedAt = s.Now()
	s.authEvents = append(s.authEvents, event)
	return nil
}

func (s *Store) AddCaseMessage(ctx context.Context, msg models.CaseMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.RoomID == msg.RoomID && m.ExternalEventID == msg.ExternalEventID {
			return store.ErrDuplicateCaseMessage
		}
	}
	msg.ID = s.nextRow()
	msg.CapturedAt = s.Now()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *Store) ListMessageRefsForCase(ctx context.Context, caseID string) ([]models.CaseMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CaseMessage
	for _, m := range s.messages {
		if m.CaseID == caseID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) FindCaseIDByMessage(ctx context.Context, roomID, externalEventID string, kind models.MessageKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.RoomID == roomID && m.ExternalEventID == externalEventID && m.Kind == kind {
			return m.CaseID, nil
		}
	}
	return "", store.ErrNotFound
}

func (s *Store) AddTranscript(ctx context.Context, t models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextRow()
	t.CapturedAt = s.Now()
	s.transcripts = append(s.transcripts, t)
	return nil
}

// Events returns the case event type tags appended for a case, in order.
// Test helper.
func (s *Store) Events(caseID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	for _, e := range s.events {
		if e.CaseID == caseID {
			tags = append(tags, e.EventType)
		}
	}
	return tags
}

// AuthEvents returns the appended auth event tags, in order. Test helper.
func (s *Store) AuthEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	for _, e := range s.authEvents {
		tags = append(tags, e.EventType)
	}
	return tags
}

// Transcripts returns a snapshot of the captured transcripts for a case.
// Test helper.
func (s *Store) Transcripts(caseID string) []models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transcript
	for _, t := range s.transcripts {
		if t.CaseID == caseID {
			out = append(out, t)
		}
	}
	return out
}

// ---- checkpoints ----

func (s *Store) EnsureExpected(ctx context.Context, caseID string, stage models.CheckpointStage, roomID, targetEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range s.checkpoints {
		if cp.RoomID == roomID && cp.TargetExternalEventID == targetEventID {
			return nil
		}
	}
	s.checkpoints = append(s.checkpoints, &models.ReactionCheckpoint{
		ID:                    s.nextRow(),
		CaseID:                caseID,
		Stage:                 stage,
		RoomID:                roomID,
		TargetExternalEventID: targetEventID,
		ExpectedAt:            s.Now(),
		Outcome:               models.CheckpointPending,
	})
	return nil
}

func (s *Store) MatchPositiveReaction(ctx context.Context, roomID, targetEventID string, meta models.ReactionMeta) (*models.ReactionCheckpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range s.checkpoints {
		if cp.RoomID != roomID || cp.TargetExternalEventID != targetEventID {
			continue
		}
		if cp.Outcome != models.CheckpointPending {
			return nil, false, nil
		}
		cp.Outcome = models.CheckpointPositiveReceived
		cp.ReactionEventID = &meta.EventID
		cp.ReactionKey = &meta.Key
		cp.ReactionUserID = &meta.UserID
		at := meta.At
		cp.ReactionAt = &at
		out := *cp
		return &out, true, nil
	}
	return nil, false, nil
}

func (s *Store) ListForCase(ctx context.Context, caseID string) ([]models.ReactionCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReactionCheckpoint
	for _, cp := range s.checkpoints {
		if cp.CaseID == caseID {
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (s *Store) GetByTarget(ctx context.Context, roomID, targetEventID string) (*models.ReactionCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range s.checkpoints {
		if cp.RoomID == roomID && cp.TargetExternalEventID == targetEventID {
			out := *cp
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// ---- users and tokens ----

func (s *Store) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, store.ErrDuplicateEmail
		}
	}
	now := s.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	u := user
	s.users[u.ID] = &u
	cp := u
	return &cp, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, u := range s.users {
		if u.Role == models.RoleAdmin && u.AccountStatus == models.AccountActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetAccountStatus(ctx context.Context, userID string, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.AccountStatus = status
	u.UpdatedAt = s.Now()
	return nil
}

func (s *Store) InsertToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.AuthToken{
		ID:        s.nextRow(),
		UserID:    userID,
		TokenHash: tokenHash,
		IssuedAt:  s.Now(),
		ExpiresAt: expiresAt,
	}
	s.tokens = append(s.tokens, t)
	cp := *t
	return &cp, nil
}

func (s *Store) GetActiveByHash(ctx context.Context, tokenHash string) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash && t.Active(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) TouchLastUsed(ctx context.Context, tokenID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.ID == tokenID {
			now := s.Now()
			t.LastUsedAt = &now
			return nil
		}
	}
	return nil
}

func (s *Store) RevokeActiveForUser(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.Active(now) {
			at := now
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

// ---- prompts ----

// SeedPrompt installs an active prompt template under a name. Test helper.
func (s *Store) SeedPrompt(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[name] = &models.PromptTemplate{
		ID:       s.nextRow(),
		Name:     name,
		Version:  1,
		Content:  content,
		IsActive: true,
	}
}

func (s *Store) GetActive(ctx context.Context, name string) (*models.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Users adapts the fake to the user store method set. Create/Get collide
// with the case methods on Store, so the user view carries its own names.
func (s *Store) Users() UserView { return UserView{s} }

// Tokens adapts the fake to the token store method set.
func (s *Store) Tokens() TokenView { return TokenView{s} }

// UserView exposes the fake's user records under the user store's names.
type UserView struct{ s *Store }

func (v UserView) Create(ctx context.Context, user models.User) (*models.User, error) {
	return v.s.CreateUser(ctx, user)
}

func (v UserView) Get(ctx context.Context, userID string) (*models.User, error) {
	return v.s.GetUser(ctx, userID)
}

func (v UserView) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return v.s.GetUserByEmail(ctx, email)
}

func (v UserView) Count(ctx context.Context) (int, error) {
	return v.s.CountUsers(ctx)
}

func (v UserView) CountActiveAdmins(ctx context.Context) (int, error) {
	return v.s.CountActiveAdmins(ctx)
}

func (v UserView) SetAccountStatus(ctx context.Context, userID string, status models.AccountStatus) error {
	return v.s.SetAccountStatus(ctx, userID, status)
}

// TokenView exposes the fake's token records under the token store's names.
type TokenView struct{ s *Store }

func (v TokenView) Insert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.AuthToken, error) {
	return v.s.InsertToken(ctx, userID, tokenHash, expiresAt)
}

func (v TokenView) GetActiveByHash(ctx context.Context, tokenHash string) (*models.AuthToken, error) {
	return v.s.GetActiveByHash(ctx, tokenHash)
}

func (v TokenView) TouchLastUsed(ctx context.Context, tokenID int64) error {
	return v.s.TouchLastUsed(ctx, tokenID)
}

func (v TokenView) RevokeActiveForUser(ctx context.Context, userID string) (int64, error) {
	return v.s.RevokeActiveForUser(ctx, userID)
}
