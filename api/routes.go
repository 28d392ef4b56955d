package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kestrel-dcr/api/handlers"
	"kestrel-dcr/core/rbac"
)

// Guards bundles the middleware combinators route registration needs.
type Guards struct {
	ActorPerm func(perm string, next http.HandlerFunc) http.HandlerFunc
}

func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("POST", "/", g.ActorPerm(rbac.PermIncidentsReport, incidents.Report))
		incidentsRouter.MethodFunc("GET", "/", g.ActorPerm(rbac.PermIncidentsView, incidents.List))
		incidentsRouter.MethodFunc("GET", "/{id}", g.ActorPerm(rbac.PermIncidentsView, incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{id}/attachments", g.ActorPerm(rbac.PermIncidentsUpdate, incidents.UpdateAttachments))
	})
}

func RegisterCases(apiRouter chi.Router, g Guards, cases *handlers.CasesHandler) {
	apiRouter.Route("/cases", func(casesRouter chi.Router) {
		casesRouter.MethodFunc("GET", "/", g.ActorPerm(rbac.PermCasesView, cases.List))
		casesRouter.MethodFunc("GET", "/{id}", g.ActorPerm(rbac.PermCasesView, cases.Get))
		casesRouter.MethodFunc("POST", "/{id}/investigation", g.ActorPerm(rbac.PermCasesInvestigate, cases.SubmitInvestigation))
		casesRouter.MethodFunc("POST", "/{id}/reinvestigate", g.ActorPerm(rbac.PermCasesApprove, cases.RequestMoreInvestigation))
		casesRouter.MethodFunc("POST", "/{id}/verdict", g.ActorPerm(rbac.PermCasesApprove, cases.RecordVerdict))
		casesRouter.MethodFunc("POST", "/{id}/appeal", g.ActorPerm(rbac.PermCasesAppeal, cases.SubmitAppeal))
		casesRouter.MethodFunc("POST", "/{id}/appeal/resolution", g.ActorPerm(rbac.PermCasesReview, cases.ResolveAppeal))
	})
}

func RegisterLogs(apiRouter chi.Router, g Guards, logs *handlers.LogsHandler) {
	apiRouter.Route("/logs", func(logsRouter chi.Router) {
		logsRouter.MethodFunc("GET", "/", g.ActorPerm(rbac.PermLogsView, logs.List))
	})
}
