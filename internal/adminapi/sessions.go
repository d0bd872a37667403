package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/wabothub/internal/session"
	"github.com/talkincode/wabothub/internal/webserver"
	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
)

func registerSessionRoutes() {
	webserver.ApiPOST("/session", postSessionAcquire)
	webserver.ApiDELETE("/session", deleteSession)
	webserver.ApiGET("/session/status", getSessionStatus)
	webserver.ApiGET("/session/qr", getSessionQR)
	webserver.ApiPOST("/message", postMessage)
}

// requireTenant resolves the tenant key from the bearer token. Operator
// tokens may target any tenant through the tenant query parameter.
func requireTenant(c echo.Context) (string, error) {
	claims, err := tenantClaims(c)
	if err != nil {
		return "", err
	}
	if claims.TenantKey != "" {
		return claims.TenantKey, nil
	}
	if claims.Level == webserver.LevelSuper {
		if t := c.QueryParam("tenant"); t != "" {
			return t, nil
		}
		return "", fail(c, http.StatusBadRequest, "MISSING_TENANT", "tenant query parameter required", nil)
	}
	return "", fail(c, http.StatusForbidden, "FORBIDDEN", "Token carries no tenant", nil)
}

// postSessionAcquire creates the tenant's session or returns the live
// one. The response carries the current snapshot plus the pairing code
// when one is fresh.
func postSessionAcquire(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}

	sess, err := handler.ctrl.Acquire(c.Request().Context(), tenantKey)
	if err != nil {
		metrics.Counter(metrics.SessionDropped, metrics.TenantLabel(tenantKey))
		if errors.Is(err, session.ErrInitFailed) {
			return fail(c, http.StatusBadGateway, "INIT_FAILED", "Session initialization failed", err.Error())
		}
		return fail(c, http.StatusInternalServerError, "ACQUIRE_FAILED", "Failed to acquire session", err.Error())
	}
	metrics.Counter(metrics.SessionAcquire, metrics.TenantLabel(tenantKey))

	resp := map[string]interface{}{
		"status": sess.Snapshot(),
	}
	if rec, err := handler.ctrl.CurrentQR(tenantKey); err == nil {
		resp["qr"] = rec
	}
	return ok(c, resp)
}

// deleteSession logs the tenant out and wipes stored credentials.
func deleteSession(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}
	if err := handler.ctrl.Destroy(c.Request().Context(), tenantKey); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return fail(c, http.StatusNotFound, "NO_SESSION", "No active session", nil)
		}
		return fail(c, http.StatusInternalServerError, "DESTROY_FAILED", "Failed to destroy session", err.Error())
	}
	metrics.Counter(metrics.CredentialPurge, metrics.TenantLabel(tenantKey))
	oprLog(c, tenantKey, "session_destroy", "session destroyed via API")
	return ok(c, map[string]interface{}{"destroyed": true})
}

func getSessionStatus(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}
	status, err := handler.ctrl.GetStatus(tenantKey)
	if err != nil {
		return fail(c, http.StatusNotFound, "NO_SESSION", "No active session", nil)
	}
	return ok(c, status)
}

// getSessionQR returns the pairing record while it is fresh. Stale or
// absent codes are a 404 so clients re-acquire instead of rendering a
// dead code.
func getSessionQR(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}
	rec, err := handler.ctrl.CurrentQR(tenantKey)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fail(c, http.StatusNotFound, "NO_SESSION", "No active session", nil)
	case errors.Is(err, session.ErrNoQR):
		return fail(c, http.StatusNotFound, "NO_QR", "No pairing code issued", nil)
	case errors.Is(err, session.ErrQRStale):
		return fail(c, http.StatusNotFound, "QR_EXPIRED", "Pairing code expired, re-acquire the session", nil)
	case err != nil:
		return fail(c, http.StatusInternalServerError, "QR_FAILED", "Failed to read pairing code", err.Error())
	}
	return ok(c, rec)
}

// postMessage sends a manual outbound message through the session.
func postMessage(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}

	var payload struct {
		Jid  string `json:"jid"`
		Text string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Jid == "" || payload.Text == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "jid and text are required", nil)
	}

	err = handler.ctrl.SendText(c.Request().Context(), tenantKey, payload.Jid, payload.Text)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fail(c, http.StatusNotFound, "NO_SESSION", "No active session", nil)
	case errors.Is(err, session.ErrNotReady):
		return fail(c, http.StatusConflict, "NOT_READY", "Session is not ready", nil)
	case err != nil:
		zap.L().Warn("manual send failed",
			zap.String("tenant", tenantKey), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
	metrics.Counter(metrics.MessageReply, metrics.TenantLabel(tenantKey))
	return ok(c, map[string]interface{}{"sent": true})
}
