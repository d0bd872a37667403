package webserver

import (
	"fmt"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/talkincode/wabothub/internal/app"
	"go.uber.org/zap"
)

// WebServer hosts the tenant and admin API.
type WebServer struct {
	appCtx app.AppContext
	root   *echo.Echo
	api    *echo.Group
}

var server *WebServer

// Init builds the echo server and the /api/v1 group with bearer auth.
// Route registration helpers below target that group.
func Init(appCtx app.AppContext) *WebServer {
	s := &WebServer{appCtx: appCtx, root: echo.New()}
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.JSONSerializer = NewJsoniterSerializer()
	s.root.Use(middleware.Recover())
	s.root.Use(middleware.CORS())
	s.root.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})

	cfg := appCtx.Config()
	s.api = s.root.Group("/api/v1")
	s.api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(cfg.Web.JwtSecret),
		NewClaimsFunc: NewTokenClaims,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/v1/login"
		},
	}))

	server = s
	return s
}

// AppContextKey is the echo context key holding the app.AppContext.
const AppContextKey = "wabothub_appctx"

// Start blocks serving HTTP until the listener fails or closes.
func (s *WebServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.appCtx.Config().Web.Host, s.appCtx.Config().Web.Port)
	zap.L().Info("starting web server", zap.String("listen", addr))
	return s.root.Start(addr)
}

// Shutdown stops the HTTP listener gracefully.
func (s *WebServer) Shutdown() {
	ctx, cancel := contextWithTimeout(5 * time.Second)
	defer cancel()
	if err := s.root.Shutdown(ctx); err != nil {
		zap.L().Warn("web server shutdown failed", zap.Error(err))
	}
}

// ApiGET registers an authenticated GET route under /api/v1.
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers an authenticated POST route under /api/v1.
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers an authenticated PUT route under /api/v1.
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers an authenticated DELETE route under /api/v1.
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}
