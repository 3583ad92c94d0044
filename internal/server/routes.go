package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/vetta-ai/vetta/internal/api/v1"
	"github.com/vetta-ai/vetta/internal/api/ws"
	"github.com/vetta-ai/vetta/internal/archive"
	"github.com/vetta-ai/vetta/internal/eventlog"
	"github.com/vetta-ai/vetta/internal/session"
)

func registerAPIRoutes(api huma.API, manager *session.Manager, events *eventlog.Store, compactor *archive.Compactor) {
	v1.RegisterSessionRoutes(api, manager)
	v1.RegisterEventRoutes(api, manager, events, compactor)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/sessions/{sessionID}", hub.ServeSession)
}
