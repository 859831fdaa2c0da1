package service

import (
	"fmt"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/repository"
	"safetrain_backend/internal/util"
	"safetrain_backend/pkg/logger"
	"safetrain_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WorkflowState string

const (
	StateIdentity  WorkflowState = "identity"
	StateSelfie    WorkflowState = "selfie"
	StateSignature WorkflowState = "signature"
	StateConsent   WorkflowState = "consent"
	StateSubmitted WorkflowState = "submitted"
	StateRejected  WorkflowState = "rejected"
)

// MissingFieldError reports the datum a workflow step still needs. The
// caller supplies it and retries the same step; state never advances
// on a missing field.
type MissingFieldError struct {
	State WorkflowState
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q in step %s", e.Field, e.State)
}

// VerificationWorkflow walks one trainee through the evidence-capture
// steps in strict forward order: identity, selfie, signature, consent,
// submitted. A consent refusal lands in the terminal rejected state;
// the trainee must start over with a fresh instance.
//
// An instance is single-use and single-trainee. It must not be driven
// by two concurrent callers; the host hands each workflow handle to
// exactly one device at a time. There is no internal lock.
type VerificationWorkflow struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"sessionId"`
	State       WorkflowState `json:"state"`
	StartedAt   time.Time     `json:"startedAt"`
	tokenString string
	candidate   model.Attendee
}

func (w *VerificationWorkflow) guard(step WorkflowState) error {
	if w.State == step {
		return nil
	}
	switch w.State {
	case StateSubmitted, StateRejected:
		return util.ErrWorkflowFinished
	}
	if stepIndex(step) > stepIndex(w.State) {
		// Called ahead of the current step: the current step's datum is
		// still missing.
		return &MissingFieldError{State: w.State, Field: stepField(w.State)}
	}
	// Re-entry to a completed step is not allowed; corrections require
	// a new workflow instance.
	return util.ErrWorkflowFinished
}

func stepIndex(s WorkflowState) int {
	switch s {
	case StateIdentity:
		return 0
	case StateSelfie:
		return 1
	case StateSignature:
		return 2
	case StateConsent:
		return 3
	default:
		return 4
	}
}

func stepField(s WorkflowState) string {
	switch s {
	case StateIdentity:
		return "name"
	case StateSelfie:
		return "selfieRef"
	case StateSignature:
		return "signatureRef"
	case StateConsent:
		return "consentGiven"
	default:
		return ""
	}
}

// SubmitIdentity records the trainee's name, nationality, language and
// device type and advances to the selfie step.
func (w *VerificationWorkflow) SubmitIdentity(name, nationality, language string, deviceType model.DeviceType) error {
	if err := w.guard(StateIdentity); err != nil {
		return err
	}
	if name == "" {
		return &MissingFieldError{State: StateIdentity, Field: "name"}
	}
	if !util.IsValidNationality(nationality) {
		return &MissingFieldError{State: StateIdentity, Field: "nationality"}
	}
	if deviceType != model.DeviceMobile && deviceType != model.DevicePC {
		deviceType = model.DeviceMobile
	}

	w.candidate.Name = name
	w.candidate.Nationality = nationality
	w.candidate.Language = language
	w.candidate.DeviceType = deviceType
	w.State = StateSelfie
	return nil
}

// SubmitSelfie records the captured selfie reference and advances to
// the signature step.
func (w *VerificationWorkflow) SubmitSelfie(selfieRef string) error {
	if err := w.guard(StateSelfie); err != nil {
		return err
	}
	if selfieRef == "" {
		return &MissingFieldError{State: StateSelfie, Field: "selfieRef"}
	}
	w.candidate.SelfieURL = selfieRef
	w.State = StateSignature
	return nil
}

// SubmitSignature records the captured signature reference and
// advances to the consent step.
func (w *VerificationWorkflow) SubmitSignature(signatureRef string) error {
	if err := w.guard(StateSignature); err != nil {
		return err
	}
	if signatureRef == "" {
		return &MissingFieldError{State: StateSignature, Field: "signatureRef"}
	}
	w.candidate.SignatureURL = signatureRef
	w.State = StateConsent
	return nil
}

// SubmitConsent completes the workflow. A refusal is terminal: the
// instance moves to rejected and nothing is ever stored for it. On
// consent the candidate attendee is finalized, with GPS attached
// best-effort; missing coordinates never block submission.
func (w *VerificationWorkflow) SubmitConsent(given bool, gpsLat, gpsLng *float64, now time.Time) (*model.Attendee, error) {
	if err := w.guard(StateConsent); err != nil {
		return nil, err
	}
	if !given {
		w.State = StateRejected
		return nil, util.ErrConsentDenied
	}

	w.candidate.ConsentGiven = true
	w.candidate.ConsentAt = now
	w.candidate.CompletedAt = now
	w.candidate.GPSLatitude = gpsLat
	w.candidate.GPSLongitude = gpsLng
	w.candidate.SessionID = w.SessionID
	w.State = StateSubmitted

	candidate := w.candidate
	return &candidate, nil
}

// Submitted reports whether the instance reached its terminal
// submitted state.
func (w *VerificationWorkflow) Submitted() bool {
	return w.State == StateSubmitted
}

// TokenString returns the session token captured at scan time; it is
// forwarded to the aggregator with the final submission.
func (w *VerificationWorkflow) TokenString() string {
	return w.tokenString
}

// VerificationService owns the registry of in-flight workflows so
// stateless HTTP handlers can find an instance between steps. Entries
// are evicted once finished or after the configured TTL; abandoned
// workflows are garbage, never recorded.
type VerificationService struct {
	issuer      *TokenIssuer
	sessionRepo *repository.SessionRepository // nil in pure in-memory tests
	ttl         time.Duration

	mu        sync.Mutex
	workflows map[string]*VerificationWorkflow
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewVerificationService(issuer *TokenIssuer, sessionRepo *repository.SessionRepository, ttl time.Duration) *VerificationService {
	s := &VerificationService{
		issuer:      issuer,
		sessionRepo: sessionRepo,
		ttl:         ttl,
		workflows:   make(map[string]*VerificationWorkflow),
		stop:        make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Start validates the scanned token and opens a fresh workflow in the
// identity step. The token must still be fresh at scan time; each scan
// also bumps the session's informational consumed counter.
func (s *VerificationService) Start(tokenString string, now time.Time) (*VerificationWorkflow, error) {
	sessionID, err := s.issuer.Validate(tokenString, now)
	if err != nil {
		return nil, err
	}

	w := &VerificationWorkflow{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		State:       StateIdentity,
		StartedAt:   now,
		tokenString: tokenString,
	}

	s.mu.Lock()
	s.workflows[w.ID] = w
	s.mu.Unlock()

	monitoring.WorkflowsActive.Inc()

	if s.sessionRepo != nil {
		if _, err := s.sessionRepo.IncrTokenConsumed(sessionID); err != nil {
			logger.Log.Warn("failed to bump token consumed counter", zap.Error(err), zap.String("sessionId", sessionID))
		}
	}

	return w, nil
}

// Get looks up an in-flight workflow by id.
func (s *VerificationService) Get(id string) (*VerificationWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, util.ErrWorkflowNotFound
	}
	return w, nil
}

// Remove discards a workflow instance. Called after the final
// submission was handed to the aggregator, after a consent refusal,
// or when a trainee abandons the flow.
func (s *VerificationService) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.workflows[id]; ok {
		delete(s.workflows, id)
		monitoring.WorkflowsActive.Dec()
	}
	s.mu.Unlock()
}

func (s *VerificationService) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for id, w := range s.workflows {
				if w.StartedAt.Before(cutoff) {
					delete(s.workflows, id)
					monitoring.WorkflowsActive.Dec()
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *VerificationService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
