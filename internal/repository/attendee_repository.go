package repository

import (
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttendeeRepository struct {
	DB *gorm.DB
}

func NewAttendeeRepository(db *gorm.DB) *AttendeeRepository {
	return &AttendeeRepository{DB: db}
}

// AppendToOpenSession durably appends an attendee, re-checking inside
// the transaction that the session row is still open. The row lock
// makes the append atomic with respect to a concurrent close: either
// the attendee lands before completedAt is set, or the append is
// rejected. Attendee rows are never updated or deleted afterwards.
func (r *AttendeeRepository) AppendToOpenSession(attendee *model.Attendee) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var session model.TrainingSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "completed_at").
			First(&session, "id = ?", attendee.SessionID).Error
		if err != nil {
			return err
		}
		if session.CompletedAt != nil {
			return util.ErrSessionClosed
		}
		return tx.Create(attendee).Error
	})
}

func (r *AttendeeRepository) ListBySession(sessionID string) ([]model.Attendee, error) {
	var attendees []model.Attendee
	err := r.DB.Where("session_id = ?", sessionID).Order("position ASC").Find(&attendees).Error
	return attendees, err
}

func (r *AttendeeRepository) CountBySession(sessionID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Attendee{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}
