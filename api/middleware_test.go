package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"kestrel-dcr/core/rbac"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return &Server{policy: policy}
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestWithActorRejectsMissingHeader(t *testing.T) {
	s := testServer(t)
	handler := s.withActor(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestActorPermDeniesWrongRole(t *testing.T) {
	s := testServer(t)
	handler := s.actorPerm(rbac.PermCasesApprove, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/cases/IR-2026-0001-C01/verdict", nil)
	req.Header.Set("X-Actor", "j.doe")
	req.Header.Set("X-Actor-Role", "reported")
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rr.Code)
	}
}

func TestActorPermAllowsMatchingRole(t *testing.T) {
	s := testServer(t)
	handler := s.actorPerm(rbac.PermCasesApprove, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/cases/IR-2026-0001-C01/verdict", nil)
	req.Header.Set("X-Actor", "m.okafor")
	req.Header.Set("X-Actor-Role", "approver")
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", rr.Code)
	}
}

func TestAdminInheritsOperationalPermissions(t *testing.T) {
	s := testServer(t)
	for _, perm := range []string{
		rbac.PermIncidentsReport,
		rbac.PermCasesInvestigate,
		rbac.PermCasesApprove,
		rbac.PermCasesAppeal,
		rbac.PermLogsView,
	} {
		handler := s.actorPerm(perm, okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
		req.Header.Set("X-Actor", "root")
		req.Header.Set("X-Actor-Role", "admin")
		rr := httptest.NewRecorder()
		handler(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("admin denied %s: %d", perm, rr.Code)
		}
	}
}
