package service

import (
	"encoding/json"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/repository"
	"safetrain_backend/internal/util"
	"safetrain_backend/pkg/logger"
	"safetrain_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// openSession is the hub's per-session critical section. All mutation
// of one session's attendee list and nationality tally happens under
// its mutex; different sessions never contend with each other.
type openSession struct {
	mu            sync.Mutex
	session       *model.TrainingSession
	byNationality map[string]int
	record        *model.SessionRecord // frozen at close, cached for idempotent reads
}

// SessionHub is the single authority over every live session's mutable
// state. Accept and Close for one session are serialized behind that
// session's lock, so concurrent trainee submissions can never lose an
// update or double-count a nationality.
//
// Repository fields may be nil; the hub then runs purely in memory,
// which is how the tests drive it.
type SessionHub struct {
	issuer               *TokenIssuer
	sessionRepo          *repository.SessionRepository
	attendeeRepo         *repository.AttendeeRepository
	defaultExpiryMinutes int

	mu       sync.RWMutex
	sessions map[string]*openSession
}

func NewSessionHub(issuer *TokenIssuer, sessionRepo *repository.SessionRepository, attendeeRepo *repository.AttendeeRepository, defaultExpiryMinutes int) *SessionHub {
	return &SessionHub{
		issuer:               issuer,
		sessionRepo:          sessionRepo,
		attendeeRepo:         attendeeRepo,
		defaultExpiryMinutes: defaultExpiryMinutes,
		sessions:             make(map[string]*openSession),
	}
}

// Open starts a live session against a published course version. The
// course title and total duration are snapshotted at this instant and
// never re-read, so later edits to the course cannot change what this
// session attests to. A non-positive expiry falls back to the
// configured default.
func (h *SessionHub) Open(course *model.Course, version *model.CourseVersion, ownerID uint, expiryMinutes int) (*model.TrainingSession, *SessionToken, error) {
	if expiryMinutes <= 0 {
		h.mu.RLock()
		expiryMinutes = h.defaultExpiryMinutes
		h.mu.RUnlock()
	}

	sessionID := model.GenerateUUID()
	token, err := h.issuer.Issue(sessionID, expiryMinutes)
	if err != nil {
		return nil, nil, err
	}

	session := &model.TrainingSession{
		UUIDBase:              model.UUIDBase{ID: sessionID},
		CourseID:              course.ID,
		CourseVersionID:       version.ID,
		CourseTitleSnapshot:   version.Title,
		TotalDurationSnapshot: version.TotalDurationSeconds,
		OwnerID:               ownerID,
		StartedAt:             token.IssuedAt,
		Token:                 token.Token,
		TokenIssuedAt:         token.IssuedAt,
		TokenExpiresAt:        token.ExpiresAt,
	}

	if h.sessionRepo != nil {
		if err := h.sessionRepo.Create(session); err != nil {
			return nil, nil, err
		}
	}

	h.mu.Lock()
	h.sessions[sessionID] = &openSession{
		session:       session,
		byNationality: make(map[string]int),
	}
	h.mu.Unlock()

	monitoring.SessionsOpen.Inc()
	logger.Log.Info("training session opened",
		zap.String("sessionId", sessionID),
		zap.Uint("courseId", course.ID),
		zap.Int("expiryMinutes", expiryMinutes))

	return session, token, nil
}

// SetDefaultExpiry updates the fallback token expiry applied when a
// session is opened without an explicit one. Called on config reload;
// already-issued tokens keep their original window.
func (h *SessionHub) SetDefaultExpiry(minutes int) {
	if minutes <= 0 {
		return
	}
	h.mu.Lock()
	h.defaultExpiryMinutes = minutes
	h.mu.Unlock()
}

func (h *SessionHub) lookup(sessionID string) (*openSession, error) {
	h.mu.RLock()
	os, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return os, nil
}

// Accept folds one verified candidate submission into the session. It
// rejects expired tokens, closed sessions and candidates that never
// reached the submitted state; a rejected call has zero effect on the
// session. On success the attendee is appended in serialization order
// and the nationality tally is bumped, keeping
// len(attendees) == sum(byNationality) under any interleaving.
func (h *SessionHub) Accept(sessionID string, candidate *model.Attendee, tokenString string, now time.Time) error {
	os, err := h.lookup(sessionID)
	if err != nil {
		return err
	}

	os.mu.Lock()
	defer os.mu.Unlock()

	if os.session.CompletedAt != nil {
		monitoring.SubmissionsRejected.WithLabelValues("session_closed").Inc()
		return util.ErrSessionClosed
	}

	tokenSessionID, err := h.issuer.Validate(tokenString, now)
	if err != nil {
		if err == util.ErrTokenExpired {
			monitoring.SubmissionsRejected.WithLabelValues("token_expired").Inc()
		} else {
			monitoring.SubmissionsRejected.WithLabelValues("token_invalid").Inc()
		}
		return err
	}
	if tokenSessionID != sessionID {
		monitoring.SubmissionsRejected.WithLabelValues("token_mismatch").Inc()
		return util.ErrTokenSessionMatch
	}

	if !candidateComplete(candidate) {
		monitoring.SubmissionsRejected.WithLabelValues("incomplete_workflow").Inc()
		return util.ErrIncompleteWorkflow
	}

	attendee := *candidate
	attendee.SessionID = sessionID
	attendee.Position = len(os.session.Attendees)
	if attendee.ID == "" {
		attendee.ID = model.GenerateUUID()
	}

	if h.attendeeRepo != nil {
		if err := h.attendeeRepo.AppendToOpenSession(&attendee); err != nil {
			monitoring.SubmissionsRejected.WithLabelValues("store_rejected").Inc()
			return err
		}
	}

	os.session.Attendees = append(os.session.Attendees, attendee)
	os.byNationality[attendee.Nationality]++

	monitoring.AttendeesAccepted.WithLabelValues(attendee.Nationality).Inc()
	h.cacheStats(os, now)

	return nil
}

// candidateComplete checks that the submission came out of a workflow
// that reached its terminal submitted state.
func candidateComplete(c *model.Attendee) bool {
	if c == nil {
		return false
	}
	return c.ConsentGiven &&
		c.Name != "" &&
		util.IsValidNationality(c.Nationality) &&
		c.SelfieURL != "" &&
		c.SignatureURL != "" &&
		!c.CompletedAt.IsZero()
}

// Close freezes the session. The first call stamps completedAt and
// builds the immutable record; every later call returns that same
// record unchanged. Closing does not require a fresh token: stragglers
// are a caller policy, only new acceptance is bounded by expiry.
func (h *SessionHub) Close(sessionID string, now time.Time) (*model.SessionRecord, error) {
	os, err := h.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	os.mu.Lock()
	defer os.mu.Unlock()

	if os.record != nil {
		return os.record, nil
	}

	completedAt := now
	os.session.CompletedAt = &completedAt

	if h.sessionRepo != nil {
		if err := h.sessionRepo.MarkCompleted(sessionID, completedAt, os.byNationality); err != nil {
			logger.Log.Error("failed to persist session close", zap.Error(err), zap.String("sessionId", sessionID))
		}
	}

	os.record = buildRecord(os.session, os.byNationality)
	monitoring.SessionsOpen.Dec()
	logger.Log.Info("training session closed",
		zap.String("sessionId", sessionID),
		zap.Int("attendees", os.record.AttendeeCount))

	return os.record, nil
}

func buildRecord(session *model.TrainingSession, byNationality map[string]int) *model.SessionRecord {
	attendees := make([]model.Attendee, len(session.Attendees))
	copy(attendees, session.Attendees)

	tally := make(map[string]int, len(byNationality))
	for code, n := range byNationality {
		tally[code] = n
	}

	return &model.SessionRecord{
		SessionID:            session.ID,
		CourseID:             session.CourseID,
		CourseVersionID:      session.CourseVersionID,
		CourseTitle:          session.CourseTitleSnapshot,
		TotalDurationSeconds: session.TotalDurationSnapshot,
		StartedAt:            session.StartedAt,
		CompletedAt:          *session.CompletedAt,
		TokenIssuedAt:        session.TokenIssuedAt,
		TokenExpiresAt:       session.TokenExpiresAt,
		AttendeeCount:        len(attendees),
		ByNationality:        tally,
		Attendees:            attendees,
	}
}

// Stats returns the live tally for the operator dashboard.
func (h *SessionHub) Stats(sessionID string, now time.Time) (*model.SessionStats, error) {
	os, err := h.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	os.mu.Lock()
	defer os.mu.Unlock()
	return h.statsLocked(os, now), nil
}

func (h *SessionHub) statsLocked(os *openSession, now time.Time) *model.SessionStats {
	tally := make(map[string]int, len(os.byNationality))
	for code, n := range os.byNationality {
		tally[code] = n
	}
	return &model.SessionStats{
		SessionID:     os.session.ID,
		AttendeeCount: len(os.session.Attendees),
		ByNationality: tally,
		TokenExpired:  !now.Before(os.session.TokenExpiresAt),
		Closed:        os.session.CompletedAt != nil,
	}
}

func (h *SessionHub) cacheStats(os *openSession, now time.Time) {
	if h.sessionRepo == nil {
		return
	}
	if err := h.sessionRepo.CacheStats(h.statsLocked(os, now)); err != nil {
		logger.Log.Debug("failed to cache session stats", zap.Error(err))
	}
}

// Session returns the live session object for read-only rendering.
func (h *SessionHub) Session(sessionID string) (*model.TrainingSession, error) {
	os, err := h.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	os.mu.Lock()
	defer os.mu.Unlock()
	copied := *os.session
	copied.Attendees = make([]model.Attendee, len(os.session.Attendees))
	copy(copied.Attendees, os.session.Attendees)
	return &copied, nil
}

// Restore re-hydrates open sessions from the store after a restart,
// rebuilding each tally from the persisted attendee rows.
func (h *SessionHub) Restore() error {
	if h.sessionRepo == nil {
		return nil
	}
	sessions, err := h.sessionRepo.FindOpen()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range sessions {
		session := sessions[i]
		tally := make(map[string]int)
		for _, a := range session.Attendees {
			tally[a.Nationality]++
		}
		h.sessions[session.ID] = &openSession{
			session:       &session,
			byNationality: tally,
		}
		monitoring.SessionsOpen.Inc()
	}

	if len(sessions) > 0 {
		logger.Log.Info("restored open training sessions", zap.Int("count", len(sessions)))
	}
	return nil
}

// Stop flushes live stats and drops the in-memory registry. Closed
// sessions stay readable through the store.
func (h *SessionHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	open := 0
	for _, os := range h.sessions {
		os.mu.Lock()
		if os.session.CompletedAt == nil {
			open++
			h.cacheStats(os, now)
		}
		os.mu.Unlock()
	}
	h.sessions = make(map[string]*openSession)

	monitoring.SessionsOpen.Set(0)
	logger.Log.Info("session hub stopped", zap.Int("openSessions", open))
}

// tallyJSON is used when rendering a closed session loaded from the
// store rather than from hub memory.
func tallyJSON(raw string) map[string]int {
	tally := make(map[string]int)
	if raw == "" {
		return tally
	}
	if err := json.Unmarshal([]byte(raw), &tally); err != nil {
		return make(map[string]int)
	}
	return tally
}

// RecordFromStored rebuilds a frozen record from a persisted, closed
// session row.
func RecordFromStored(session *model.TrainingSession) (*model.SessionRecord, error) {
	if session.CompletedAt == nil {
		return nil, util.ErrSessionNotClosed
	}
	return buildRecord(session, tallyJSON(session.ByNationality)), nil
}
