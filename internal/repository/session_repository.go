package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"safetrain_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const statsCacheTTL = 10 * time.Minute

type SessionRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewSessionRepository(db *gorm.DB, rdb *redis.Client) *SessionRepository {
	return &SessionRepository{DB: db, Redis: rdb, ctx: context.Background()}
}

func (r *SessionRepository) Create(session *model.TrainingSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) FindByID(id string) (*model.TrainingSession, error) {
	var session model.TrainingSession
	err := r.DB.Preload("Attendees", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpen returns sessions that have not been closed yet, used to
// re-hydrate the session hub after a restart.
func (r *SessionRepository) FindOpen() ([]model.TrainingSession, error) {
	var sessions []model.TrainingSession
	err := r.DB.Preload("Attendees", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("completed_at IS NULL").Find(&sessions).Error
	return sessions, err
}

// MarkCompleted stamps completedAt and the final nationality tally on
// a still-open session. The WHERE guard makes the write idempotent: a
// second close finds zero open rows and changes nothing.
func (r *SessionRepository) MarkCompleted(id string, completedAt time.Time, byNationality map[string]int) error {
	tally, err := json.Marshal(byNationality)
	if err != nil {
		return err
	}
	return r.DB.Model(&model.TrainingSession{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]interface{}{
			"completed_at":   completedAt,
			"by_nationality": string(tally),
		}).Error
}

// IncrTokenConsumed bumps the informational scan counter for a
// session's token. The counter is monotonic and best-effort; it is
// never consulted for access decisions.
func (r *SessionRepository) IncrTokenConsumed(sessionID string) (int64, error) {
	if r.Redis == nil {
		return 0, nil
	}
	return r.Redis.Incr(r.ctx, fmt.Sprintf("session:token:consumed:%s", sessionID)).Result()
}

func (r *SessionRepository) TokenConsumedCount(sessionID string) int64 {
	if r.Redis == nil {
		return 0
	}
	n, err := r.Redis.Get(r.ctx, fmt.Sprintf("session:token:consumed:%s", sessionID)).Int64()
	if err != nil {
		return 0
	}
	return n
}

// CacheStats mirrors the live attendee tally into redis so operator
// dashboards on other instances can poll it cheaply.
func (r *SessionRepository) CacheStats(stats *model.SessionStats) error {
	if r.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.Redis.Set(r.ctx, fmt.Sprintf("session:stats:%s", stats.SessionID), payload, statsCacheTTL).Err()
}

func (r *SessionRepository) CachedStats(sessionID string) (*model.SessionStats, error) {
	if r.Redis == nil {
		return nil, redis.Nil
	}
	payload, err := r.Redis.Get(r.ctx, fmt.Sprintf("session:stats:%s", sessionID)).Bytes()
	if err != nil {
		return nil, err
	}
	var stats model.SessionStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
