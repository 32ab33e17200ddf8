package audit

import (
	"fmt"
	"time"

	"github.com/localjobs/identity/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLog is an append-only trail of identity actions. Entries keep the
// full internal failure taxonomy even where the external response blurs
// it (the forgot-password path answers generically).
type AuditLog struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Action      string    `json:"action" gorm:"size:64;not null;index"`
	ActorID     uint      `json:"actor_id" gorm:"index"`
	TargetModel string    `json:"target_model" gorm:"size:64"`
	TargetID    uint      `json:"target_id"`
	Outcome     string    `json:"outcome" gorm:"size:64"`
	IP          string    `json:"ip" gorm:"size:64"`
	UserAgent   string    `json:"user_agent" gorm:"size:500"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type Entry struct {
	Action      string
	ActorID     uint
	TargetModel string
	TargetID    uint
	Outcome     string
	IP          string
	UserAgent   string
}

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{db: db, logger: logger}
}

// Log records an entry. Failures are logged but never propagated; an
// audit write must not break the request it describes.
func (s *Service) Log(entry Entry) {
	rec := AuditLog{
		Action:      entry.Action,
		ActorID:     entry.ActorID,
		TargetModel: entry.TargetModel,
		TargetID:    entry.TargetID,
		Outcome:     entry.Outcome,
		IP:          entry.IP,
		UserAgent:   entry.UserAgent,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.logger.Error("failed to write audit log",
			zap.Error(err),
			zap.String("action", entry.Action))
	}
}

// Prune removes entries older than the cutoff.
func (s *Service) Prune(before time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", before).Delete(&AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune audit logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
