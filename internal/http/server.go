// README: API gateway; holds module services and exposes the HTTP handler.
package http

import (
	"net/http"

	"dispatch/internal/modules/analytics"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/schedule"
)

type ServerDeps struct {
	Assignment *assignment.Service
	Schedule   *schedule.Service
	Location   *location.Service
	Analytics  *analytics.Service
	Hub        *broadcast.Hub
	// AllowedOrigins is the websocket origin allow-list.
	AllowedOrigins []string
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.deps)
}
