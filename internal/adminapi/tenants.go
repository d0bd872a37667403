package adminapi

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func registerTenantRoutes() {
	webserver.ApiGET("/tenants", listTenants)
	webserver.ApiPOST("/tenants", postCreateTenant)
	webserver.ApiPUT("/tenants/:key/status", putTenantStatus)
	webserver.ApiGET("/tenant/profile", getTenantProfile)
	webserver.ApiPUT("/tenant/profile", putTenantProfile)
}

var tenantIdgen, _ = snowflake.NewNode(7)

// requireSuper rejects non-operator tokens.
func requireSuper(c echo.Context) error {
	claims, err := tenantClaims(c)
	if err != nil {
		return err
	}
	if claims.Level != webserver.LevelSuper {
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Operator token required", nil)
	}
	return nil
}

func listTenants(c echo.Context) error {
	if err := requireSuper(c); err != nil {
		return err
	}
	var tenants []domain.BotTenant
	if err := GetDB(c).Order("id DESC").Find(&tenants).Error; err != nil {
		zap.L().Warn("list tenants failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "LIST_FAILED", "Failed to list tenants", err.Error())
	}
	return ok(c, map[string]interface{}{"tenants": tenants})
}

func postCreateTenant(c echo.Context) error {
	if err := requireSuper(c); err != nil {
		return err
	}

	var payload struct {
		TenantKey string `json:"tenant_key"`
		Name      string `json:"name"`
		Secret    string `json:"secret"`
		Remark    string `json:"remark"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.TenantKey == "" || payload.Secret == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "tenant_key and secret are required", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Secret), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "HASH_FAILED", "Failed to hash secret", nil)
	}

	tenant := domain.BotTenant{
		ID:        tenantIdgen.Generate().Int64(),
		TenantKey: payload.TenantKey,
		Name:      payload.Name,
		Secret:    string(hashed),
		Status:    domain.TenantEnabled,
		Remark:    payload.Remark,
	}
	if err := GetDB(c).Create(&tenant).Error; err != nil {
		zap.L().Warn("create tenant failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create tenant", err.Error())
	}

	// every tenant starts with a disabled default profile
	profile := domain.BotProfile{
		ID:        tenantIdgen.Generate().Int64(),
		TenantKey: tenant.TenantKey,
		Fallback:  "",
		Enabled:   false,
	}
	if err := GetDB(c).Create(&profile).Error; err != nil {
		zap.L().Warn("create default profile failed", zap.Error(err))
	}

	oprLog(c, tenant.TenantKey, "tenant_create", "tenant created")
	return ok(c, map[string]interface{}{"id": tenant.ID, "tenant_key": tenant.TenantKey})
}

func putTenantStatus(c echo.Context) error {
	if err := requireSuper(c); err != nil {
		return err
	}
	key := c.Param("key")

	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Status != domain.TenantEnabled && payload.Status != domain.TenantDisabled {
		return fail(c, http.StatusBadRequest, "INVALID_STATUS", "status must be enabled or disabled", nil)
	}

	ret := GetDB(c).Model(&domain.BotTenant{}).
		Where("tenant_key = ?", key).
		Update("status", payload.Status)
	if ret.Error != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update tenant", ret.Error.Error())
	}
	if ret.RowsAffected == 0 {
		return fail(c, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
	}
	oprLog(c, key, "tenant_status", "tenant status set to "+payload.Status)
	return ok(c, map[string]interface{}{"updated": true})
}

func getTenantProfile(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}
	var profile domain.BotProfile
	if err := GetDB(c).Where("tenant_key = ?", tenantKey).First(&profile).Error; err != nil {
		return fail(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "No profile configured", nil)
	}
	return ok(c, profile)
}

func putTenantProfile(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}

	var payload struct {
		SystemPrompt string  `json:"system_prompt"`
		Model        string  `json:"model"`
		Temperature  float32 `json:"temperature"`
		Greeting     string  `json:"greeting"`
		Fallback     string  `json:"fallback"`
		Enabled      bool    `json:"enabled"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}

	updates := map[string]interface{}{
		"system_prompt": payload.SystemPrompt,
		"model":         payload.Model,
		"temperature":   payload.Temperature,
		"greeting":      payload.Greeting,
		"fallback":      payload.Fallback,
		"enabled":       payload.Enabled,
	}
	ret := GetDB(c).Model(&domain.BotProfile{}).
		Where("tenant_key = ?", tenantKey).
		Updates(updates)
	if ret.Error != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update profile", ret.Error.Error())
	}
	if ret.RowsAffected == 0 {
		profile := domain.BotProfile{
			ID:           tenantIdgen.Generate().Int64(),
			TenantKey:    tenantKey,
			SystemPrompt: payload.SystemPrompt,
			Model:        payload.Model,
			Temperature:  payload.Temperature,
			Greeting:     payload.Greeting,
			Fallback:     payload.Fallback,
			Enabled:      payload.Enabled,
		}
		if err := GetDB(c).Create(&profile).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create profile", err.Error())
		}
	}
	oprLog(c, tenantKey, "profile_update", "bot profile updated")
	return ok(c, map[string]interface{}{"updated": true})
}
