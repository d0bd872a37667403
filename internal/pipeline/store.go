package pipeline

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/talkincode/wabothub/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultFallback is sent when the pipeline fails and the tenant has no
// configured fallback text.
const DefaultFallback = "Sorry, I can't answer right now. Please try again in a moment."

// Store reads tenant profiles and writes chat turns.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewStore(db *gorm.DB) (*Store, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, errors.Wrap(err, "snowflake node")
	}
	return &Store{db: db, node: node}, nil
}

// ActiveProfile returns the tenant's enabled profile parameters. Zero
// values mean the caller's defaults apply.
func (s *Store) ActiveProfile(tenantKey string) (prompt string, model string, temperature float32) {
	var profile domain.BotProfile
	err := s.db.Where("tenant_key = ? and enabled = ?", tenantKey, true).
		Order("updated_at desc").
		First(&profile).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("profile lookup failed",
				zap.String("tenant", tenantKey), zap.Error(err))
		}
		return "", "", 0
	}
	return profile.SystemPrompt, profile.Model, profile.Temperature
}

// FallbackText returns the apology sent when reply generation fails.
func (s *Store) FallbackText(tenantKey string) string {
	var profile domain.BotProfile
	err := s.db.Where("tenant_key = ? and enabled = ?", tenantKey, true).
		Order("updated_at desc").
		First(&profile).Error
	if err == nil && profile.Fallback != "" {
		return profile.Fallback
	}
	return DefaultFallback
}

// GreetingText returns the profile greeting for a chat with no recorded
// history, empty when the chat is already known or no greeting is set.
func (s *Store) GreetingText(tenantKey, chatJID string) string {
	var profile domain.BotProfile
	err := s.db.Where("tenant_key = ? and enabled = ?", tenantKey, true).
		Order("updated_at desc").
		First(&profile).Error
	if err != nil || profile.Greeting == "" {
		return ""
	}
	var seen int64
	err = s.db.Model(&domain.ChatTurn{}).
		Where("tenant_key = ? and chat_jid = ?", tenantKey, chatJID).
		Count(&seen).Error
	if err != nil || seen > 0 {
		return ""
	}
	return profile.Greeting
}

// RecordTurn persists one chat exchange. Failures are logged and
// swallowed; turn history is best-effort bookkeeping.
func (s *Store) RecordTurn(turn *domain.ChatTurn) {
	if turn.ID == 0 {
		turn.ID = s.node.Generate().Int64()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	if err := s.db.Create(turn).Error; err != nil {
		zap.L().Warn("chat turn record failed",
			zap.String("tenant", turn.TenantKey), zap.Error(err))
	}
}

// PurgeTurnsBefore deletes chat turns older than the cutoff.
func (s *Store) PurgeTurnsBefore(cutoff time.Time) (int64, error) {
	ret := s.db.Where("created_at < ?", cutoff).Delete(&domain.ChatTurn{})
	return ret.RowsAffected, ret.Error
}
