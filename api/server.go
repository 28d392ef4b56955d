package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kestrel-dcr/api/handlers"
	"kestrel-dcr/config"
	"kestrel-dcr/core/rbac"
	"kestrel-dcr/core/store"
	"kestrel-dcr/core/utils"
	"kestrel-dcr/core/workflow"
)

type Server struct {
	cfg       *config.AppConfig
	logger    *utils.Logger
	policy    *rbac.Policy
	workflow  *workflow.Service
	incidents *store.IncidentsRepo
	cases     *store.CasesRepo
	audits    store.AuditStore
}

func NewServer(cfg *config.AppConfig, logger *utils.Logger, policy *rbac.Policy, wf *workflow.Service, incidents *store.IncidentsRepo, cases *store.CasesRepo, audits store.AuditStore) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		policy:    policy,
		workflow:  wf,
		incidents: incidents,
		cases:     cases,
		audits:    audits,
	}
}

type routeHandlers struct {
	incidents *handlers.IncidentsHandler
	cases     *handlers.CasesHandler
	logs      *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		incidents: handlers.NewIncidentsHandler(s.workflow, s.incidents, s.cases, s.logger),
		cases:     handlers.NewCasesHandler(s.workflow, s.cases, s.logger),
		logs:      handlers.NewLogsHandler(s.audits),
	}
}

// Handler builds the full middleware chain and route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.jsonMiddleware)
	r.Use(s.loggingMiddleware)

	h := s.newRouteHandlers()
	g := Guards{ActorPerm: s.actorPerm}

	r.Route("/api", func(apiRouter chi.Router) {
		RegisterIncidents(apiRouter, g, h.incidents)
		RegisterCases(apiRouter, g, h.cases)
		RegisterLogs(apiRouter, g, h.logs)
	})
	r.MethodFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
