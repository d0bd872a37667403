package adminapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func registerLoginRoutes() {
	webserver.ApiPOST("/login", postLogin)
}

// postLogin exchanges credentials for a bearer token. Tenants send
// tenant_key + secret; operators send username + password.
func postLogin(c echo.Context) error {
	var payload struct {
		TenantKey string `json:"tenant_key"`
		Secret    string `json:"secret"`
		Username  string `json:"username"`
		Password  string `json:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}

	if payload.TenantKey != "" {
		return tenantLogin(c, payload.TenantKey, payload.Secret)
	}
	if payload.Username != "" {
		return operatorLogin(c, payload.Username, payload.Password)
	}
	return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "tenant_key or username required", nil)
}

func tenantLogin(c echo.Context, tenantKey, secret string) error {
	var tenant domain.BotTenant
	err := GetDB(c).Where("tenant_key = ?", tenantKey).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid tenant credentials", nil)
	}
	if err != nil {
		zap.L().Error("tenant lookup failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DB_ERROR", "Tenant lookup failed", nil)
	}
	if tenant.Status != domain.TenantEnabled {
		return fail(c, http.StatusForbidden, "TENANT_DISABLED", "Tenant is disabled", nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(tenant.Secret), []byte(secret)) != nil {
		return fail(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid tenant credentials", nil)
	}

	cfg := GetAppCtx(c).Config()
	token, err := webserver.IssueToken(cfg.Web.JwtSecret, tenant.Name, tenant.TenantKey, webserver.LevelTenant)
	if err != nil {
		zap.L().Error("token issue failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "TOKEN_FAILED", "Failed to issue token", nil)
	}

	GetDB(c).Model(&domain.BotTenant{}).
		Where("id = ?", tenant.ID).
		Update("last_login", time.Now())
	oprLog(c, tenant.TenantKey, "login", "tenant login")

	return ok(c, map[string]interface{}{
		"token":      token,
		"tenant_key": tenant.TenantKey,
		"expires_in": int(webserver.TokenTTL.Seconds()),
	})
}

func operatorLogin(c echo.Context, username, password string) error {
	var opr domain.SysOpr
	err := GetDB(c).Where("username = ?", username).First(&opr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid operator credentials", nil)
	}
	if err != nil {
		zap.L().Error("operator lookup failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DB_ERROR", "Operator lookup failed", nil)
	}
	if opr.Status != domain.TenantEnabled {
		return fail(c, http.StatusForbidden, "OPERATOR_DISABLED", "Operator is disabled", nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(opr.Password), []byte(password)) != nil {
		return fail(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid operator credentials", nil)
	}

	cfg := GetAppCtx(c).Config()
	token, err := webserver.IssueToken(cfg.Web.JwtSecret, opr.Username, "", opr.Level)
	if err != nil {
		zap.L().Error("token issue failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "TOKEN_FAILED", "Failed to issue token", nil)
	}

	GetDB(c).Model(&domain.SysOpr{}).
		Where("id = ?", opr.ID).
		Update("last_login", time.Now())
	oprLog(c, opr.Username, "login", "operator login")

	return ok(c, map[string]interface{}{
		"token":      token,
		"level":      opr.Level,
		"expires_in": int(webserver.TokenTTL.Seconds()),
	})
}
