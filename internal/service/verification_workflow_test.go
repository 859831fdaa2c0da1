package service

import (
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflow() *VerificationWorkflow {
	return &VerificationWorkflow{
		ID:        model.GenerateUUID(),
		SessionID: "session-1",
		State:     StateIdentity,
		StartedAt: time.Now(),
	}
}

func TestWorkflowHappyPath(t *testing.T) {
	w := newWorkflow()
	now := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)

	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))
	assert.Equal(t, StateSelfie, w.State)

	require.NoError(t, w.SubmitSelfie("evidence/selfie-1.jpg"))
	assert.Equal(t, StateSignature, w.State)

	require.NoError(t, w.SubmitSignature("evidence/sig-1.png"))
	assert.Equal(t, StateConsent, w.State)

	lat, lng := 37.5665, 126.978
	attendee, err := w.SubmitConsent(true, &lat, &lng, now)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, w.State)
	assert.True(t, w.Submitted())

	assert.Equal(t, "Kim Min-jun", attendee.Name)
	assert.Equal(t, "KR", attendee.Nationality)
	assert.Equal(t, "ko", attendee.Language)
	assert.Equal(t, "session-1", attendee.SessionID)
	assert.Equal(t, "evidence/selfie-1.jpg", attendee.SelfieURL)
	assert.Equal(t, "evidence/sig-1.png", attendee.SignatureURL)
	assert.True(t, attendee.ConsentGiven)
	assert.Equal(t, now, attendee.ConsentAt)
	assert.Equal(t, now, attendee.CompletedAt)
	require.NotNil(t, attendee.GPSLatitude)
	assert.InDelta(t, 37.5665, *attendee.GPSLatitude, 1e-9)
}

func TestWorkflowGPSIsOptional(t *testing.T) {
	w := newWorkflow()
	require.NoError(t, w.SubmitIdentity("Nguyen Van An", "VN", "vi", model.DevicePC))
	require.NoError(t, w.SubmitSelfie("evidence/selfie-2.jpg"))
	require.NoError(t, w.SubmitSignature("evidence/sig-2.png"))

	attendee, err := w.SubmitConsent(true, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, attendee.GPSLatitude)
	assert.Nil(t, attendee.GPSLongitude)
}

func TestWorkflowStepsAreStrictlyOrdered(t *testing.T) {
	w := newWorkflow()

	// Selfie before identity: the identity datum is still missing and
	// the state does not move.
	err := w.SubmitSelfie("evidence/selfie.jpg")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StateIdentity, missing.State)
	assert.Equal(t, "name", missing.Field)
	assert.Equal(t, StateIdentity, w.State)

	_, err = w.SubmitConsent(true, nil, nil, time.Now())
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StateIdentity, w.State)

	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))

	// Signature before selfie.
	err = w.SubmitSignature("evidence/sig.png")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StateSelfie, missing.State)
	assert.Equal(t, "selfieRef", missing.Field)
	assert.Equal(t, StateSelfie, w.State)
}

func TestWorkflowNoReentry(t *testing.T) {
	w := newWorkflow()
	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))
	require.NoError(t, w.SubmitSelfie("evidence/selfie.jpg"))

	err := w.SubmitIdentity("Someone Else", "VN", "vi", model.DeviceMobile)
	assert.ErrorIs(t, err, util.ErrWorkflowFinished)
	assert.Equal(t, "Kim Min-jun", w.candidate.Name)
	assert.Equal(t, StateSignature, w.State)
}

func TestWorkflowMissingFieldKeepsState(t *testing.T) {
	w := newWorkflow()

	var missing *MissingFieldError

	err := w.SubmitIdentity("", "KR", "ko", model.DeviceMobile)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "name", missing.Field)
	assert.Equal(t, StateIdentity, w.State)

	err = w.SubmitIdentity("Kim Min-jun", "ZZ", "ko", model.DeviceMobile)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nationality", missing.Field)
	assert.Equal(t, StateIdentity, w.State)

	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))

	err = w.SubmitSelfie("")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "selfieRef", missing.Field)
	assert.Equal(t, StateSelfie, w.State)
}

func TestWorkflowConsentDenialIsTerminal(t *testing.T) {
	w := newWorkflow()
	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))
	require.NoError(t, w.SubmitSelfie("evidence/selfie.jpg"))
	require.NoError(t, w.SubmitSignature("evidence/sig.png"))

	attendee, err := w.SubmitConsent(false, nil, nil, time.Now())
	assert.ErrorIs(t, err, util.ErrConsentDenied)
	assert.Nil(t, attendee)
	assert.Equal(t, StateRejected, w.State)

	// A rejected workflow accepts nothing, not even a change of heart.
	_, err = w.SubmitConsent(true, nil, nil, time.Now())
	assert.ErrorIs(t, err, util.ErrWorkflowFinished)
	assert.Equal(t, StateRejected, w.State)
}

func TestWorkflowSubmittedIsTerminal(t *testing.T) {
	w := newWorkflow()
	require.NoError(t, w.SubmitIdentity("Kim Min-jun", "KR", "ko", model.DeviceMobile))
	require.NoError(t, w.SubmitSelfie("evidence/selfie.jpg"))
	require.NoError(t, w.SubmitSignature("evidence/sig.png"))
	_, err := w.SubmitConsent(true, nil, nil, time.Now())
	require.NoError(t, err)

	_, err = w.SubmitConsent(true, nil, nil, time.Now())
	assert.ErrorIs(t, err, util.ErrWorkflowFinished)

	err = w.SubmitSelfie("evidence/other.jpg")
	assert.ErrorIs(t, err, util.ErrWorkflowFinished)
}

func TestVerificationServiceLifecycle(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)
	svc := NewVerificationService(issuer, nil, time.Hour)
	defer svc.Stop()

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)

	w, err := svc.Start(token.Token, issued)
	require.NoError(t, err)
	assert.Equal(t, "session-1", w.SessionID)
	assert.Equal(t, StateIdentity, w.State)
	assert.Equal(t, token.Token, w.TokenString())

	got, err := svc.Get(w.ID)
	require.NoError(t, err)
	assert.Same(t, w, got)

	svc.Remove(w.ID)
	_, err = svc.Get(w.ID)
	assert.ErrorIs(t, err, util.ErrWorkflowNotFound)
}

func TestVerificationServiceRejectsExpiredScan(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)
	svc := NewVerificationService(issuer, nil, time.Hour)
	defer svc.Stop()

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)

	_, err = svc.Start(token.Token, token.ExpiresAt)
	assert.ErrorIs(t, err, util.ErrTokenExpired)
}
