package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/store/redisstore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists usage counts per (session, mode). The store owns the reset
// policy.
type Store interface {
	Used(ctx context.Context, sessionID string, mode ai.Mode) (int64, error)
	Incr(ctx context.Context, sessionID string, mode ai.Mode) (int64, error)
	Reset(ctx context.Context, sessionID string, mode ai.Mode) error
}

// windowed is implemented by stores whose counters reset on their own.
type windowed interface {
	ResetsIn(ctx context.Context, sessionID string, mode ai.Mode) (time.Duration, error)
}

// RedisStore keeps counters in Redis; each counter expires Window after its
// first increment.
type RedisStore struct {
	rds    *redisstore.Store
	Window time.Duration
	Prefix string
}

func NewRedisStore(rds *redisstore.Store, window time.Duration) *RedisStore {
	return &RedisStore{rds: rds, Window: window, Prefix: "kairos:quota"}
}

func (s *RedisStore) key(sessionID string, mode ai.Mode) string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, sessionID, mode)
}

func (s *RedisStore) Used(ctx context.Context, sessionID string, mode ai.Mode) (int64, error) {
	return s.rds.GetInt(ctx, s.key(sessionID, mode))
}

func (s *RedisStore) Incr(ctx context.Context, sessionID string, mode ai.Mode) (int64, error) {
	return s.rds.IncrWithin(ctx, s.key(sessionID, mode), s.Window)
}

func (s *RedisStore) ResetsIn(ctx context.Context, sessionID string, mode ai.Mode) (time.Duration, error) {
	return s.rds.TTL(ctx, s.key(sessionID, mode))
}

func (s *RedisStore) Reset(ctx context.Context, sessionID string, mode ai.Mode) error {
	return s.rds.Del(ctx, s.key(sessionID, mode))
}

// Usage is the SQL row behind DBStore.
type Usage struct {
	SessionID string    `gorm:"primaryKey;type:varchar(26)"`
	Mode      string    `gorm:"primaryKey;type:varchar(32)"`
	Used      int64     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Usage) TableName() string { return "quota_usages" }

// DBStore keeps counters in the application database. Counters only reset
// through Reset.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Used(ctx context.Context, sessionID string, mode ai.Mode) (int64, error) {
	var u Usage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND mode = ?", sessionID, string(mode)).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return u.Used, nil
}

// Incr upserts the row; the increment happens in the database.
func (s *DBStore) Incr(ctx context.Context, sessionID string, mode ai.Mode) (int64, error) {
	row := Usage{SessionID: sessionID, Mode: string(mode), Used: 1}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "mode"}},
		DoUpdates: clause.Assignments(map[string]any{
			"used":       gorm.Expr("used + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("increment quota %s/%s: %w", sessionID, mode, err)
	}
	return s.Used(ctx, sessionID, mode)
}

func (s *DBStore) Reset(ctx context.Context, sessionID string, mode ai.Mode) error {
	return s.db.WithContext(ctx).
		Where("session_id = ? AND mode = ?", sessionID, string(mode)).
		Delete(&Usage{}).Error
}
