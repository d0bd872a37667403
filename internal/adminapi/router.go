package adminapi

import (
	"github.com/talkincode/wabothub/internal/broadcast"
	"github.com/talkincode/wabothub/internal/pipeline"
	"github.com/talkincode/wabothub/internal/session"
)

// Handler bundles the services the API routes need.
type Handler struct {
	ctrl   *session.Controller
	hub    *broadcast.Hub
	store  *pipeline.Store
	bridge *sseBridge
}

var handler *Handler

// Init wires the API routes onto the webserver. Must run after
// webserver.Init.
func Init(ctrl *session.Controller, hub *broadcast.Hub, store *pipeline.Store) {
	handler = &Handler{ctrl: ctrl, hub: hub, store: store, bridge: newSSEBridge(hub)}
	registerLoginRoutes()
	registerSessionRoutes()
	registerTenantRoutes()
	registerStreamRoutes()
	registerMetricsRoutes()
}
