// Package workflow implements the mutating operations over incidents and
// cases. Each operation re-reads current state under a per-incident lock,
// asks the lifecycle engine for a decision, persists with compare-on-write,
// then runs best-effort closure and notification steps.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"kestrel-dcr/config"
	"kestrel-dcr/core/lifecycle"
	"kestrel-dcr/core/notify"
	"kestrel-dcr/core/store"
	"kestrel-dcr/core/utils"
)

const systemActor = "system"

type Service struct {
	cfg        config.IncidentsConfig
	incidents  *store.IncidentsRepo
	cases      *store.CasesRepo
	audits     store.AuditStore
	dispatcher notify.Dispatcher
	logger     *utils.Logger

	// createMu serializes incident creation: the registry-number scan is not
	// safe under concurrent creation.
	createMu sync.Mutex

	// incidentMu serializes mutations per incident so id generation and
	// read-modify-write cycles against sibling cases cannot race.
	mu         sync.Mutex
	incidentMu map[string]*sync.Mutex
}

func NewService(cfg config.IncidentsConfig, incidents *store.IncidentsRepo, cases *store.CasesRepo, audits store.AuditStore, dispatcher notify.Dispatcher, logger *utils.Logger) *Service {
	if dispatcher == nil {
		dispatcher = notify.NopDispatcher{}
	}
	return &Service{
		cfg:        cfg,
		incidents:  incidents,
		cases:      cases,
		audits:     audits,
		dispatcher: dispatcher,
		logger:     logger,
		incidentMu: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockIncident(id string) func() {
	s.mu.Lock()
	m, ok := s.incidentMu[id]
	if !ok {
		m = &sync.Mutex{}
		s.incidentMu[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// ReportedIndividual is one person named in an incident report.
type ReportedIndividual struct {
	Name   string `json:"name"`
	Squad  string `json:"squad,omitempty"`
	Campus string `json:"campus,omitempty"`
}

type ReportIncidentInput struct {
	Complainant         string                `json:"complainant"`
	ComplainantCategory string                `json:"complainant_category"`
	OccurredAt          time.Time             `json:"occurred_at"`
	Description         string                `json:"description"`
	Attachments         []store.AttachmentRef `json:"attachments,omitempty"`
	Reported            []ReportedIndividual  `json:"reported"`
}

// ReportIncident creates the incident and exactly one case per reported
// individual, all in Pending Investigation. Cases are never created after
// this point.
func (s *Service) ReportIncident(ctx context.Context, actor string, in ReportIncidentInput) (*store.Incident, []store.Case, error) {
	if strings.TrimSpace(in.Complainant) == "" {
		return nil, nil, lifecycle.NewError(lifecycle.KindValidation, "complainant is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, nil, lifecycle.NewError(lifecycle.KindValidation, "description is required")
	}
	reported := dedupeReported(in.Reported)
	if len(reported) == 0 {
		return nil, nil, lifecycle.NewError(lifecycle.KindValidation, "at least one reported individual is required")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	inc := &store.Incident{
		Complainant:         strings.TrimSpace(in.Complainant),
		ComplainantCategory: strings.TrimSpace(in.ComplainantCategory),
		OccurredAt:          in.OccurredAt,
		Description:         strings.TrimSpace(in.Description),
		Attachments:         fillAttachmentIDs(in.Attachments),
		UpdatedBy:           actor,
	}
	if err := s.incidents.Create(ctx, inc, s.cfg.RegNoFormat); err != nil {
		return nil, nil, err
	}

	created := make([]store.Case, 0, len(reported))
	for _, person := range reported {
		id, err := s.cases.NextCaseID(ctx, inc.ID)
		if err != nil {
			return nil, nil, err
		}
		c := &store.Case{
			ID:          id,
			IncidentID:  inc.ID,
			Reported:    person.Name,
			Squad:       person.Squad,
			Campus:      person.Campus,
			Attachments: inc.Attachments,
			UpdatedBy:   actor,
		}
		if err := s.cases.Create(ctx, c); err != nil {
			return nil, nil, err
		}
		created = append(created, *c)
	}
	s.audit(ctx, actor, "incident.report", fmt.Sprintf("%s with %d case(s)", inc.ID, len(created)))
	return inc, created, nil
}

func dedupeReported(in []ReportedIndividual) []ReportedIndividual {
	seen := make(map[string]struct{}, len(in))
	var out []ReportedIndividual
	for _, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		p.Name = name
		out = append(out, p)
	}
	return out
}

func fillAttachmentIDs(refs []store.AttachmentRef) []store.AttachmentRef {
	for i := range refs {
		if refs[i].ID == "" {
			refs[i].ID = uuid.Must(uuid.NewV4()).String()
		}
	}
	return refs
}

// getCase loads a case or returns a typed not-found error.
func (s *Service) getCase(ctx context.Context, id string) (*store.Case, error) {
	c, err := s.cases.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, lifecycle.NewError(lifecycle.KindNotFound, fmt.Sprintf("case %s not found", id))
	}
	return c, nil
}

func (s *Service) getIncident(ctx context.Context, id string) (*store.Incident, error) {
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, lifecycle.NewError(lifecycle.KindNotFound, fmt.Sprintf("incident %s not found", id))
	}
	return inc, nil
}

func (s *Service) audit(ctx context.Context, actor, action, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, actor, action, details); err != nil {
		s.logger.Errorf("audit %s: %v", action, err)
	}
}

// dispatch sends a notification and only logs failures: a recorded verdict
// stands even when the mail gateway is down.
func (s *Service) dispatch(ctx context.Context, template, subject string, to []string, payload map[string]string) {
	msg := notify.Message{To: to, Template: template, Subject: subject, Payload: payload}
	if err := s.dispatcher.Notify(ctx, msg); err != nil {
		s.logger.Errorf("notify %s: %v", template, err)
	}
}

func casePayload(c *store.Case) map[string]string {
	return map[string]string{
		"case_id":     c.ID,
		"incident_id": c.IncidentID,
		"status":      string(c.Status),
		"verdict":     string(c.Verdict),
	}
}

// checkIncidentClosure closes the parent incident when every child case is
// terminal. Best-effort and idempotent: failures are logged, re-closing a
// closed incident is a no-op. Callers hold the incident lock.
func (s *Service) checkIncidentClosure(ctx context.Context, incidentID string) {
	cases, err := s.cases.ListByIncident(ctx, incidentID)
	if err != nil {
		s.logger.Errorf("closure check %s: %v", incidentID, err)
		return
	}
	if !lifecycle.IncidentShouldClose(cases) {
		return
	}
	inc, err := s.incidents.Get(ctx, incidentID)
	if err != nil || inc == nil {
		s.logger.Errorf("closure check %s: incident unreadable: %v", incidentID, err)
		return
	}
	if inc.Status == store.IncidentClosed {
		return
	}
	inc.Status = store.IncidentClosed
	entry := store.ChangeEntry{
		Action: "status_changed_to_" + string(store.IncidentClosed),
		Actor:  systemActor,
		Fields: []string{"status"},
	}
	if err := s.incidents.Update(ctx, inc, inc.UpdatedAt, entry); err != nil {
		s.logger.Errorf("closure check %s: %v", incidentID, err)
		return
	}
	s.logger.Printf("incident %s closed", incidentID)
	s.dispatch(ctx, notify.TemplateIncidentClosed, "Incident "+incidentID+" closed",
		[]string{inc.Complainant}, map[string]string{"incident_id": incidentID})
	s.audit(ctx, systemActor, "incident.close", incidentID)
}

// SyncIncidentAttachments replaces the incident's attachment set and
// propagates the same list to every child case's general set. Investigator,
// approver, and appeal sets are never touched.
func (s *Service) SyncIncidentAttachments(ctx context.Context, actor, incidentID string, refs []store.AttachmentRef) (*store.Incident, error) {
	unlock := s.lockIncident(incidentID)
	defer unlock()

	inc, err := s.getIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	refs = fillAttachmentIDs(refs)
	inc.Attachments = refs
	entry := store.ChangeEntry{Action: store.ChangeActionUpdated, Actor: actor, Fields: []string{"attachments"}}
	if err := s.incidents.Update(ctx, inc, inc.UpdatedAt, entry); err != nil {
		return nil, err
	}
	cases, err := s.cases.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	for i := range cases {
		c := cases[i]
		c.Attachments = refs
		centry := store.ChangeEntry{Action: store.ChangeActionUpdated, Actor: actor, Fields: []string{"attachments"}}
		if err := s.cases.Update(ctx, &c, c.UpdatedAt, centry); err != nil {
			return nil, err
		}
	}
	s.audit(ctx, actor, "incident.attachments.sync", incidentID)
	return inc, nil
}
