package app

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/talkincode/wabothub/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var idgen, _ = snowflake.NewNode(9)

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "wabothub"

	hashed, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("failed to hash default password", zap.Error(err))
		return
	}

	var operator domain.SysOpr
	err = a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        idgen.Generate().Int64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  string(hashed),
			Level:     "super",
			Status:    domain.TenantEnabled,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, "super")
	resetStatus := !strings.EqualFold(operator.Status, domain.TenantEnabled)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = string(hashed)
	}
	if resetLevel {
		updates["level"] = "super"
	}
	if resetStatus {
		updates["status"] = domain.TenantEnabled
	}

	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

// checkDemoTenant seeds a demo tenant and profile so a fresh install can
// pair a device without touching the API first.
func (a *Application) checkDemoTenant() {
	if !a.appConfig.System.Debug {
		return
	}

	var count int64
	a.gormDB.Model(&domain.BotTenant{}).Count(&count)
	if count > 0 {
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("demo"), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("failed to hash demo secret", zap.Error(err))
		return
	}

	tenant := domain.BotTenant{
		ID:        idgen.Generate().Int64(),
		TenantKey: "demo",
		Name:      "Demo Tenant",
		Secret:    string(hashed),
		Status:    domain.TenantEnabled,
		Remark:    "seeded demo tenant",
	}
	if err := a.gormDB.Create(&tenant).Error; err != nil {
		zap.L().Error("failed to create demo tenant", zap.Error(err))
		return
	}

	profile := domain.BotProfile{
		ID:           idgen.Generate().Int64(),
		TenantKey:    tenant.TenantKey,
		SystemPrompt: "You are a friendly demo assistant.",
		Temperature:  0.7,
		Enabled:      true,
		Remark:       "seeded demo profile",
	}
	if err := a.gormDB.Create(&profile).Error; err != nil {
		zap.L().Error("failed to create demo profile", zap.Error(err))
		return
	}

	zap.L().Info("initialized demo tenant", zap.String("tenant", tenant.TenantKey))
}
