package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kestrel-dcr/config"
	"kestrel-dcr/core/lifecycle"
	"kestrel-dcr/core/notify"
	"kestrel-dcr/core/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	fail bool
}

func (d *recordingDispatcher) Notify(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("gateway down")
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *recordingDispatcher) templates() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.sent))
	for _, m := range d.sent {
		out = append(out, m.Template)
	}
	return out
}

type fixture struct {
	service    *Service
	incidents  *store.IncidentsRepo
	cases      *store.CasesRepo
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "kestrel_test.db")}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	records := store.NewRecordStore(db)
	incidents := store.NewIncidentsRepo(records)
	cases := store.NewCasesRepo(records)
	audits := store.NewAuditStore(db)
	dispatcher := &recordingDispatcher{}
	incCfg := config.IncidentsConfig{RegNoFormat: "IR-{year}-{seq:04}", AppealWindowDays: 7}
	return &fixture{
		service:    NewService(incCfg, incidents, cases, audits, dispatcher, nil),
		incidents:  incidents,
		cases:      cases,
		dispatcher: dispatcher,
	}
}

func (f *fixture) report(t *testing.T, reported ...string) (*store.Incident, []store.Case) {
	t.Helper()
	in := ReportIncidentInput{
		Complainant: "c.reyes",
		Description: "altercation in the common room",
	}
	for _, name := range reported {
		in.Reported = append(in.Reported, ReportedIndividual{Name: name, Squad: "falcon"})
	}
	inc, cases, err := f.service.ReportIncident(context.Background(), "c.reyes", in)
	if err != nil {
		t.Fatalf("report incident: %v", err)
	}
	return inc, cases
}

func TestReportIncidentCreatesOneCasePerReported(t *testing.T) {
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe", "a.smith", "J.Doe")
	if inc.Status != store.IncidentOpen {
		t.Fatalf("incident status %s", inc.Status)
	}
	if len(cases) != 2 {
		t.Fatalf("expected duplicate reported names collapsed to 2 cases, got %d", len(cases))
	}
	for _, c := range cases {
		if c.Status != store.StatusPendingInvestigation {
			t.Errorf("case %s status %s", c.ID, c.Status)
		}
		if c.IncidentID != inc.ID {
			t.Errorf("case %s parent %s", c.ID, c.IncidentID)
		}
	}
	if cases[0].ID == cases[1].ID {
		t.Fatalf("duplicate case ids %s", cases[0].ID)
	}
}

func TestReportIncidentValidation(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.service.ReportIncident(context.Background(), "c.reyes", ReportIncidentInput{
		Complainant: "c.reyes",
		Description: "no one named",
	})
	if !lifecycle.IsKind(err, lifecycle.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFullDisciplinaryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe")
	caseID := cases[0].ID

	c, err := f.service.SubmitInvestigation(ctx, "i.varga", caseID, InvestigationInput{
		Category:    store.CategoryStudentCode,
		SubCategory: "Behavioral Misconduct",
		Level:       4,
		Comments:    "two witness statements",
	})
	if err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	if c.Status != store.StatusInvestigationSubmitted {
		t.Fatalf("status %s after investigation", c.Status)
	}

	c, err = f.service.RecordVerdict(ctx, "m.okafor", caseID, VerdictInput{
		Verdict:    store.VerdictGuilty,
		Punishment: "Suspension",
	})
	if err != nil {
		t.Fatalf("record verdict: %v", err)
	}
	if c.Status != store.StatusVerdictGiven {
		t.Fatalf("status %s after guilty level-4 verdict", c.Status)
	}
	if c.VerdictRecordedAt.IsZero() {
		t.Fatalf("verdict timestamp not set")
	}

	c, err = f.service.SubmitAppeal(ctx, "j.doe", caseID, AppealInput{Reason: "New evidence"})
	if err != nil {
		t.Fatalf("submit appeal: %v", err)
	}
	if c.Status != store.StatusAppealed {
		t.Fatalf("status %s after appeal", c.Status)
	}

	c, err = f.service.ResolveAppeal(ctx, "m.okafor", caseID, ResolveAppealInput{
		FinalVerdict:   store.FinalUphold,
		ReviewComments: "No merit",
	})
	if err != nil {
		t.Fatalf("resolve appeal: %v", err)
	}
	if c.Status != store.StatusFinalDecision {
		t.Fatalf("status %s after resolution", c.Status)
	}
	if c.Verdict != store.VerdictGuilty {
		t.Fatalf("uphold changed verdict to %s", c.Verdict)
	}

	closed, err := f.incidents.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if closed.Status != store.IncidentClosed {
		t.Fatalf("incident %s not closed after terminal case", inc.ID)
	}

	templates := f.dispatcher.templates()
	want := []string{
		notify.TemplateInvestigationSubmitted,
		notify.TemplateVerdictRecorded,
		notify.TemplateAppealSubmitted,
		notify.TemplateIncidentClosed,
		notify.TemplateAppealResolved,
	}
	if len(templates) != len(want) {
		t.Fatalf("notification templates %v, want %v", templates, want)
	}
	for i := range want {
		if templates[i] != want[i] {
			t.Fatalf("notification templates %v, want %v", templates, want)
		}
	}
}

func TestRecordVerdictRejectsSecondVerdict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cases := f.report(t, "j.doe")
	caseID := cases[0].ID

	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", caseID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 4,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	if _, err := f.service.RecordVerdict(ctx, "m.okafor", caseID, VerdictInput{
		Verdict: store.VerdictGuilty, Punishment: "Suspension",
	}); err != nil {
		t.Fatalf("first verdict: %v", err)
	}
	_, err := f.service.RecordVerdict(ctx, "m.okafor", caseID, VerdictInput{
		Verdict: store.VerdictNotGuilty,
	})
	if !lifecycle.IsKind(err, lifecycle.KindInvalidTransition) {
		t.Fatalf("expected invalid transition on second verdict, got %v", err)
	}
}

func TestGuiltyVerdictRequiresPunishment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cases := f.report(t, "j.doe")
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 4,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	_, err := f.service.RecordVerdict(ctx, "m.okafor", cases[0].ID, VerdictInput{Verdict: store.VerdictGuilty})
	if !lifecycle.IsKind(err, lifecycle.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLowSeverityGuiltyVerdictIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe")
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryInternshipCode, Level: 2,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	c, err := f.service.RecordVerdict(ctx, "m.okafor", cases[0].ID, VerdictInput{
		Verdict: store.VerdictGuilty, Punishment: "Warning",
	})
	if err != nil {
		t.Fatalf("record verdict: %v", err)
	}
	if c.Status != store.StatusFinalDecision {
		t.Fatalf("status %s, low-severity guilty verdict must be final", c.Status)
	}
	closed, _ := f.incidents.Get(ctx, inc.ID)
	if closed.Status != store.IncidentClosed {
		t.Fatalf("incident must close once its only case is final")
	}
}

func TestIncidentClosesOnlyWhenAllThreeCasesFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe", "a.smith", "b.cole")

	for i, c := range cases {
		if _, err := f.service.SubmitInvestigation(ctx, "i.varga", c.ID, InvestigationInput{
			Category: store.CategoryStudentCode, Level: 1,
		}); err != nil {
			t.Fatalf("investigation %s: %v", c.ID, err)
		}
		if _, err := f.service.RecordVerdict(ctx, "m.okafor", c.ID, VerdictInput{Verdict: store.VerdictNotGuilty}); err != nil {
			t.Fatalf("verdict %s: %v", c.ID, err)
		}
		got, err := f.incidents.Get(ctx, inc.ID)
		if err != nil {
			t.Fatalf("get incident: %v", err)
		}
		if i < len(cases)-1 && got.Status != store.IncidentOpen {
			t.Fatalf("incident closed after %d of %d cases", i+1, len(cases))
		}
		if i == len(cases)-1 && got.Status != store.IncidentClosed {
			t.Fatalf("incident not closed after final case")
		}
	}
}

func TestSubmitAppealDeniedBelowThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cases := f.report(t, "j.doe")
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryInternshipCode, Level: 3,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	if _, err := f.service.RecordVerdict(ctx, "m.okafor", cases[0].ID, VerdictInput{
		Verdict: store.VerdictGuilty, Punishment: "Probation",
		RevisedLevel: 3,
	}); err != nil {
		t.Fatalf("record verdict: %v", err)
	}
	// Downgrade via repo to simulate a case sitting just below the threshold.
	c, _ := f.cases.Get(ctx, cases[0].ID)
	c.Level = 2
	entry := store.ChangeEntry{Action: store.ChangeActionUpdated, Actor: "test", Fields: []string{"level"}}
	if err := f.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	_, err := f.service.SubmitAppeal(ctx, "j.doe", cases[0].ID, AppealInput{Reason: "too harsh"})
	e, ok := lifecycle.AsError(err)
	if !ok || e.Kind != lifecycle.KindIneligibleAppeal || e.Code != lifecycle.DenialLevelTooLow {
		t.Fatalf("expected level_too_low denial, got %v", err)
	}
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dispatcher.fail = true
	_, cases := f.report(t, "j.doe")
	c, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 4,
	})
	if err != nil {
		t.Fatalf("operation failed on notification error: %v", err)
	}
	if c.Status != store.StatusInvestigationSubmitted {
		t.Fatalf("status %s", c.Status)
	}
}

func TestRequestMoreInvestigationCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cases := f.report(t, "j.doe")
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 2,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	c, err := f.service.RequestMoreInvestigation(ctx, "m.okafor", cases[0].ID)
	if err != nil {
		t.Fatalf("request more investigation: %v", err)
	}
	if c.Status != store.StatusPendingInvestigation {
		t.Fatalf("status %s after reinvestigation request", c.Status)
	}
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", cases[0].ID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 3,
	}); err != nil {
		t.Fatalf("resubmit investigation: %v", err)
	}
}

func TestSyncIncidentAttachmentsPropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe", "a.smith")
	refs := []store.AttachmentRef{{Name: "cctv.mp4"}, {Name: "statement.pdf"}}
	if _, err := f.service.SyncIncidentAttachments(ctx, "m.okafor", inc.ID, refs); err != nil {
		t.Fatalf("sync attachments: %v", err)
	}
	for _, seed := range cases {
		c, err := f.cases.Get(ctx, seed.ID)
		if err != nil {
			t.Fatalf("get case: %v", err)
		}
		if len(c.Attachments) != 2 {
			t.Fatalf("case %s has %d attachments", c.ID, len(c.Attachments))
		}
		for _, ref := range c.Attachments {
			if ref.ID == "" {
				t.Fatalf("attachment id not assigned")
			}
		}
		if len(c.InvestigatorAttachments) != 0 || len(c.ApproverAttachments) != 0 {
			t.Fatalf("per-case attachment sets must stay untouched")
		}
	}
}

func TestSweepFinalizesExpiredAppealWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inc, cases := f.report(t, "j.doe")
	caseID := cases[0].ID

	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", caseID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 4,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	if _, err := f.service.RecordVerdict(ctx, "m.okafor", caseID, VerdictInput{
		Verdict: store.VerdictGuilty, Punishment: "Suspension",
	}); err != nil {
		t.Fatalf("record verdict: %v", err)
	}

	// Backdate the verdict past the window.
	c, _ := f.cases.Get(ctx, caseID)
	c.VerdictRecordedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	entry := store.ChangeEntry{Action: store.ChangeActionUpdated, Actor: "test", Fields: []string{"verdict_recorded_at"}}
	if err := f.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	swept, err := f.service.SweepExpiredAppealWindows(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d cases, want 1", swept)
	}
	after, _ := f.cases.Get(ctx, caseID)
	if after.Status != store.StatusFinalDecision {
		t.Fatalf("case status %s after sweep", after.Status)
	}
	closed, _ := f.incidents.Get(ctx, inc.ID)
	if closed.Status != store.IncidentClosed {
		t.Fatalf("incident not closed after sweep")
	}

	// Idempotent: nothing left to sweep, incident stays closed.
	swept, err = f.service.SweepExpiredAppealWindows(ctx)
	if err != nil || swept != 0 {
		t.Fatalf("second sweep: %d, %v", swept, err)
	}
}

func TestExpiredAppealRejectedThroughService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cases := f.report(t, "j.doe")
	caseID := cases[0].ID
	if _, err := f.service.SubmitInvestigation(ctx, "i.varga", caseID, InvestigationInput{
		Category: store.CategoryStudentCode, Level: 4,
	}); err != nil {
		t.Fatalf("submit investigation: %v", err)
	}
	if _, err := f.service.RecordVerdict(ctx, "m.okafor", caseID, VerdictInput{
		Verdict: store.VerdictGuilty, Punishment: "Suspension",
	}); err != nil {
		t.Fatalf("record verdict: %v", err)
	}
	c, _ := f.cases.Get(ctx, caseID)
	c.VerdictRecordedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	entry := store.ChangeEntry{Action: store.ChangeActionUpdated, Actor: "test", Fields: []string{"verdict_recorded_at"}}
	if err := f.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	_, err := f.service.SubmitAppeal(ctx, "j.doe", caseID, AppealInput{Reason: "late"})
	e, ok := lifecycle.AsError(err)
	if !ok || e.Code != lifecycle.DenialWindowExpired {
		t.Fatalf("expected window_expired denial, got %v", err)
	}
}
