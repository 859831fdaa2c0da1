package service

import (
	"encoding/json"
	"fmt"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hubEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T) (*SessionHub, *model.TrainingSession, *SessionToken) {
	t.Helper()

	issuer := fixedIssuer("test-secret", hubEpoch)
	hub := NewSessionHub(issuer, nil, nil, 30)

	course := &model.Course{
		BaseModel: model.BaseModel{ID: 7},
		OwnerID:   1,
		Title:     "Forklift Safety",
	}
	version := &model.CourseVersion{
		BaseModel:            model.BaseModel{ID: 42},
		CourseID:             7,
		Version:              1,
		Title:                "Forklift Safety",
		TotalDurationSeconds: 300,
	}

	session, token, err := hub.Open(course, version, 1, 30)
	require.NoError(t, err)
	return hub, session, token
}

func completeCandidate(name, nationality string, completedAt time.Time) *model.Attendee {
	return &model.Attendee{
		Name:         name,
		Nationality:  nationality,
		Language:     "en",
		SelfieURL:    "evidence/" + name + "-selfie.jpg",
		SignatureURL: "evidence/" + name + "-sig.png",
		DeviceType:   model.DeviceMobile,
		ConsentGiven: true,
		ConsentAt:    completedAt,
		CompletedAt:  completedAt,
	}
}

func TestHubOpenSnapshotsCourse(t *testing.T) {
	_, session, token := newTestHub(t)

	assert.Equal(t, uint(7), session.CourseID)
	assert.Equal(t, uint(42), session.CourseVersionID)
	assert.Equal(t, "Forklift Safety", session.CourseTitleSnapshot)
	assert.Equal(t, 300, session.TotalDurationSnapshot)
	assert.Equal(t, session.ID, token.SessionID)
	assert.Equal(t, hubEpoch, token.IssuedAt)
	assert.Equal(t, hubEpoch.Add(30*time.Minute), token.ExpiresAt)
}

func TestHubOpenDefaultsExpiry(t *testing.T) {
	issuer := fixedIssuer("test-secret", hubEpoch)
	hub := NewSessionHub(issuer, nil, nil, 45)

	course := &model.Course{BaseModel: model.BaseModel{ID: 1}, Title: "t"}
	version := &model.CourseVersion{BaseModel: model.BaseModel{ID: 2}, Title: "t"}

	_, token, err := hub.Open(course, version, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, hubEpoch.Add(45*time.Minute), token.ExpiresAt)
}

func TestHubAcceptConcurrent(t *testing.T) {
	hub, session, token := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	const n = 50
	nationalities := []string{"KR", "VN", "CN"}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := completeCandidate(fmt.Sprintf("trainee-%d", i), nationalities[i%len(nationalities)], now)
			errs[i] = hub.Accept(session.ID, candidate, token.Token, now)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "accept %d", i)
	}

	stats, err := hub.Stats(session.ID, now)
	require.NoError(t, err)
	assert.Equal(t, n, stats.AttendeeCount)

	sum := 0
	for _, c := range stats.ByNationality {
		sum += c
	}
	assert.Equal(t, n, sum, "tally must account for every attendee exactly once")

	// Positions are the acceptance order: dense and unique.
	live, err := hub.Session(session.ID)
	require.NoError(t, err)
	seen := make(map[int]bool, n)
	for _, a := range live.Attendees {
		assert.False(t, seen[a.Position], "duplicate position %d", a.Position)
		assert.Less(t, a.Position, n)
		seen[a.Position] = true
	}
	assert.Len(t, seen, n)
}

func TestHubAcceptRejectsExpiredToken(t *testing.T) {
	hub, session, token := newTestHub(t)
	late := token.ExpiresAt

	err := hub.Accept(session.ID, completeCandidate("late", "KR", late), token.Token, late)
	assert.ErrorIs(t, err, util.ErrTokenExpired)

	stats, statsErr := hub.Stats(session.ID, late)
	require.NoError(t, statsErr)
	assert.Equal(t, 0, stats.AttendeeCount)
	assert.True(t, stats.TokenExpired)
}

func TestHubAcceptRejectsForeignToken(t *testing.T) {
	hub, session, _ := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	other, err := hub.issuer.Issue("some-other-session", 30)
	require.NoError(t, err)

	err = hub.Accept(session.ID, completeCandidate("drifter", "KR", now), other.Token, now)
	assert.ErrorIs(t, err, util.ErrTokenSessionMatch)
}

func TestHubAcceptRejectsIncompleteCandidate(t *testing.T) {
	hub, session, token := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	partial := completeCandidate("partial", "KR", now)
	partial.SignatureURL = ""

	err := hub.Accept(session.ID, partial, token.Token, now)
	assert.ErrorIs(t, err, util.ErrIncompleteWorkflow)

	noConsent := completeCandidate("silent", "KR", now)
	noConsent.ConsentGiven = false
	err = hub.Accept(session.ID, noConsent, token.Token, now)
	assert.ErrorIs(t, err, util.ErrIncompleteWorkflow)

	stats, statsErr := hub.Stats(session.ID, now)
	require.NoError(t, statsErr)
	assert.Equal(t, 0, stats.AttendeeCount)
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub, session, token := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	require.NoError(t, hub.Accept(session.ID, completeCandidate("kim", "KR", now), token.Token, now))
	require.NoError(t, hub.Accept(session.ID, completeCandidate("an", "VN", now), token.Token, now))

	closeAt := hubEpoch.Add(10 * time.Minute)
	first, err := hub.Close(session.ID, closeAt)
	require.NoError(t, err)

	// A later close with a different clock returns the same frozen
	// record, not a re-stamped one.
	second, err := hub.Close(session.ID, closeAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, closeAt, second.CompletedAt)

	assert.Equal(t, 2, first.AttendeeCount)
	assert.Equal(t, map[string]int{"KR": 1, "VN": 1}, first.ByNationality)
	assert.Equal(t, "Forklift Safety", first.CourseTitle)
	assert.Equal(t, 300, first.TotalDurationSeconds)
	assert.Len(t, first.Attendees, 2)
}

func TestHubAcceptAfterCloseRejected(t *testing.T) {
	hub, session, token := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	_, err := hub.Close(session.ID, now)
	require.NoError(t, err)

	err = hub.Accept(session.ID, completeCandidate("late", "KR", now), token.Token, now)
	assert.ErrorIs(t, err, util.ErrSessionClosed)
}

func TestHubCloseAfterTokenExpiry(t *testing.T) {
	hub, session, token := newTestHub(t)
	now := hubEpoch.Add(time.Minute)

	require.NoError(t, hub.Accept(session.ID, completeCandidate("kim", "KR", now), token.Token, now))

	// Token expiry only stops new acceptance; the operator can still
	// close the session afterwards.
	record, err := hub.Close(session.ID, token.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, record.AttendeeCount)
}

func TestHubUnknownSession(t *testing.T) {
	issuer := fixedIssuer("test-secret", hubEpoch)
	hub := NewSessionHub(issuer, nil, nil, 30)

	err := hub.Accept("no-such-session", completeCandidate("x", "KR", hubEpoch), "token", hubEpoch)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	_, err = hub.Close("no-such-session", hubEpoch)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	_, err = hub.Stats("no-such-session", hubEpoch)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestRecordFromStored(t *testing.T) {
	completed := hubEpoch.Add(20 * time.Minute)
	tally, err := json.Marshal(map[string]int{"KR": 2, "VN": 1})
	require.NoError(t, err)

	session := &model.TrainingSession{
		UUIDBase:              model.UUIDBase{ID: "session-1"},
		CourseID:              7,
		CourseVersionID:       42,
		CourseTitleSnapshot:   "Forklift Safety",
		TotalDurationSnapshot: 300,
		StartedAt:             hubEpoch,
		TokenIssuedAt:         hubEpoch,
		TokenExpiresAt:        hubEpoch.Add(30 * time.Minute),
		ByNationality:         string(tally),
		Attendees: []model.Attendee{
			*completeCandidate("kim", "KR", completed),
			*completeCandidate("lee", "KR", completed),
			*completeCandidate("an", "VN", completed),
		},
	}

	_, err = RecordFromStored(session)
	assert.ErrorIs(t, err, util.ErrSessionNotClosed)

	session.CompletedAt = &completed
	record, err := RecordFromStored(session)
	require.NoError(t, err)
	assert.Equal(t, 3, record.AttendeeCount)
	assert.Equal(t, map[string]int{"KR": 2, "VN": 1}, record.ByNationality)
	assert.Equal(t, completed, record.CompletedAt)
}

// Full trainee flow against an in-memory hub: publish-shaped course,
// open session, two verification workflows, close, frozen record.
func TestSessionEndToEnd(t *testing.T) {
	nodes := []model.GraphNode{
		{ID: "start", Kind: model.NodeStart},
		{ID: "clip", Kind: model.NodeContent, ContentKind: model.ContentVideo, DurationSeconds: 300},
		{ID: "end", Kind: model.NodeEnd},
	}
	edges := []model.GraphEdge{
		{From: "start", To: "clip"},
		{From: "clip", To: "end"},
	}
	graph, graphErrs := BuildCourseGraph(nodes, edges)
	require.Empty(t, graphErrs)

	issuer := fixedIssuer("test-secret", hubEpoch)
	hub := NewSessionHub(issuer, nil, nil, 30)
	verification := NewVerificationService(issuer, nil, time.Hour)
	defer verification.Stop()

	course := &model.Course{BaseModel: model.BaseModel{ID: 7}, Title: "Forklift Safety"}
	version := &model.CourseVersion{
		BaseModel:            model.BaseModel{ID: 42},
		CourseID:             7,
		Version:              1,
		Title:                course.Title,
		TotalDurationSeconds: graph.TotalDurationSeconds,
	}

	session, token, err := hub.Open(course, version, 1, 30)
	require.NoError(t, err)
	assert.Equal(t, 300, session.TotalDurationSnapshot)

	type trainee struct {
		name        string
		nationality string
	}
	for i, tr := range []trainee{{"Kim Min-jun", "KR"}, {"Nguyen Van An", "VN"}} {
		scanAt := hubEpoch.Add(time.Duration(i+1) * time.Minute)

		w, err := verification.Start(token.Token, scanAt)
		require.NoError(t, err)
		require.NoError(t, w.SubmitIdentity(tr.name, tr.nationality, "en", model.DeviceMobile))
		require.NoError(t, w.SubmitSelfie("evidence/selfie.jpg"))
		require.NoError(t, w.SubmitSignature("evidence/sig.png"))

		candidate, err := w.SubmitConsent(true, nil, nil, scanAt)
		require.NoError(t, err)

		require.NoError(t, hub.Accept(session.ID, candidate, w.TokenString(), scanAt))
		verification.Remove(w.ID)
	}

	record, err := hub.Close(session.ID, hubEpoch.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttendeeCount)
	assert.Equal(t, map[string]int{"KR": 1, "VN": 1}, record.ByNationality)
	assert.Equal(t, 300, record.TotalDurationSeconds)
	assert.Equal(t, "Forklift Safety", record.CourseTitle)
	assert.Equal(t, token.IssuedAt, record.TokenIssuedAt)
	assert.Equal(t, token.ExpiresAt, record.TokenExpiresAt)
	assert.Equal(t, "Kim Min-jun", record.Attendees[0].Name)
	assert.Equal(t, 0, record.Attendees[0].Position)
	assert.Equal(t, 1, record.Attendees[1].Position)
}
