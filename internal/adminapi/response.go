package adminapi

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wabothub/internal/app"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/webserver"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RestResult is the uniform API envelope.
type RestResult struct {
	Code   int         `json:"code"`
	Msgtag string      `json:"msgtag,omitempty"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(200, RestResult{Code: 0, Msg: "ok", Data: data})
}

func fail(c echo.Context, status int, msgtag, msg string, detail interface{}) error {
	return c.JSON(status, RestResult{Code: 1, Msgtag: msgtag, Msg: msg, Data: detail})
}

// GetAppCtx returns the application context attached by the webserver.
func GetAppCtx(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return GetAppCtx(c).DB()
}

// tenantClaims returns the verified claims or writes a 401.
func tenantClaims(c echo.Context) (*webserver.TokenClaims, error) {
	claims, err := webserver.Claims(c)
	if err != nil {
		return nil, fail(c, 401, "UNAUTHORIZED", "Invalid or missing token", nil)
	}
	return claims, nil
}

var oprLogIdgen, _ = snowflake.NewNode(8)

// oprLog records an audited API action, best-effort.
func oprLog(c echo.Context, name, action, desc string) {
	entry := domain.SysOprLog{
		ID:        oprLogIdgen.Generate().Int64(),
		OprName:   name,
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	}
	if err := GetDB(c).Create(&entry).Error; err != nil {
		zap.L().Warn("operation log write failed", zap.Error(err))
	}
}
