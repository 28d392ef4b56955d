package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kestrel-dcr/core/lifecycle"
	"kestrel-dcr/core/notify"
	"kestrel-dcr/core/store"
)

type InvestigationInput struct {
	Category    store.OffenceCategory `json:"category"`
	SubCategory string                `json:"sub_category"`
	Level       int                   `json:"level"`
	Comments    string                `json:"comments,omitempty"`
	Attachments []store.AttachmentRef `json:"attachments,omitempty"`
}

// SubmitInvestigation files the investigator's classification and findings,
// moving the case from Pending Investigation to Investigation Submitted.
func (s *Service) SubmitInvestigation(ctx context.Context, actor, caseID string, in InvestigationInput) (*store.Case, error) {
	if !in.Category.Valid() {
		return nil, lifecycle.NewError(lifecycle.KindValidation, fmt.Sprintf("unknown offence category %q", in.Category))
	}
	if in.Level < store.MinOffenceLevel || in.Level > store.MaxOffenceLevel {
		return nil, lifecycle.NewError(lifecycle.KindValidation, fmt.Sprintf("offence level %d out of range", in.Level))
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	if err := lifecycle.CheckTransition(c.Status, store.StatusInvestigationSubmitted); err != nil {
		return nil, err
	}

	c.Category = in.Category
	c.SubCategory = strings.TrimSpace(in.SubCategory)
	c.Level = in.Level
	c.Comments = strings.TrimSpace(in.Comments)
	c.InvestigatorAttachments = fillAttachmentIDs(in.Attachments)
	c.Status = store.StatusInvestigationSubmitted
	entry := store.ChangeEntry{
		Action: lifecycle.StatusChangeAction(c.Status),
		Actor:  actor,
		Fields: []string{"category", "sub_category", "level", "comments", "investigator_attachments", "case_status"},
	}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "case.investigation.submit", caseID)
	s.dispatch(ctx, notify.TemplateInvestigationSubmitted,
		"Investigation submitted for case "+caseID, []string{c.Reported}, casePayload(c))
	return c, nil
}

type VerdictInput struct {
	Verdict            store.Verdict         `json:"verdict"`
	Punishment         string                `json:"punishment,omitempty"`
	Attachments        []store.AttachmentRef `json:"attachments,omitempty"`
	RevisedCategory    store.OffenceCategory `json:"revised_category,omitempty"`
	RevisedSubCategory string                `json:"revised_sub_category,omitempty"`
	RevisedLevel       int                   `json:"revised_level,omitempty"`
}

// RecordVerdict applies the approver's finding. The resulting status follows
// the verdict-recording rule: low-severity guilty verdicts and every Not
// Guilty finding are final, appealable ones stay in Verdict Given.
func (s *Service) RecordVerdict(ctx context.Context, actor, caseID string, in VerdictInput) (*store.Case, error) {
	if !in.Verdict.Valid() {
		return nil, lifecycle.NewError(lifecycle.KindValidation, fmt.Sprintf("unknown verdict %q", in.Verdict))
	}
	if in.Verdict == store.VerdictGuilty && strings.TrimSpace(in.Punishment) == "" {
		return nil, lifecycle.NewError(lifecycle.KindValidation, "punishment is required for a guilty verdict")
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	// Verdict Given → Final Decision is a legal edge, so the table alone
	// would admit a second verdict; gate on the source state explicitly.
	if c.Status != store.StatusInvestigationSubmitted {
		return nil, lifecycle.NewError(lifecycle.KindInvalidTransition,
			fmt.Sprintf("cannot record a verdict on case in %q", c.Status))
	}

	changed := []string{"verdict", "case_status"}
	if in.RevisedCategory != "" {
		if !in.RevisedCategory.Valid() {
			return nil, lifecycle.NewError(lifecycle.KindValidation, fmt.Sprintf("unknown offence category %q", in.RevisedCategory))
		}
		c.Category = in.RevisedCategory
		changed = append(changed, "category")
	}
	if in.RevisedSubCategory != "" {
		c.SubCategory = strings.TrimSpace(in.RevisedSubCategory)
		changed = append(changed, "sub_category")
	}
	if in.RevisedLevel != 0 {
		if in.RevisedLevel < store.MinOffenceLevel || in.RevisedLevel > store.MaxOffenceLevel {
			return nil, lifecycle.NewError(lifecycle.KindValidation, fmt.Sprintf("offence level %d out of range", in.RevisedLevel))
		}
		c.Level = in.RevisedLevel
		changed = append(changed, "level")
	}

	next := lifecycle.VerdictOutcome(c.Category, c.Level, in.Verdict)
	if err := lifecycle.CheckTransition(c.Status, next); err != nil {
		return nil, err
	}
	c.Verdict = in.Verdict
	if strings.TrimSpace(in.Punishment) != "" {
		c.Punishment = strings.TrimSpace(in.Punishment)
		changed = append(changed, "punishment")
	}
	if len(in.Attachments) > 0 {
		c.ApproverAttachments = fillAttachmentIDs(in.Attachments)
		changed = append(changed, "approver_attachments")
	}
	c.Status = next
	c.VerdictRecordedAt = time.Now().UTC()
	entry := store.ChangeEntry{Action: lifecycle.StatusChangeAction(next), Actor: actor, Fields: changed}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return nil, err
	}
	if next == store.StatusFinalDecision {
		s.checkIncidentClosure(ctx, c.IncidentID)
	}
	s.audit(ctx, actor, "case.verdict.record", fmt.Sprintf("%s %s", caseID, in.Verdict))
	s.dispatch(ctx, notify.TemplateVerdictRecorded,
		"Verdict recorded for case "+caseID, []string{c.Reported}, casePayload(c))
	return c, nil
}

type AppealInput struct {
	Reason      string                `json:"reason"`
	Attachments []store.AttachmentRef `json:"attachments,omitempty"`
}

// SubmitAppeal accepts an appeal from the reported individual when the
// eligibility rule and the appeal window allow it.
func (s *Service) SubmitAppeal(ctx context.Context, actor, caseID string, in AppealInput) (*store.Case, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, lifecycle.NewError(lifecycle.KindValidation, "appeal reason is required")
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := lifecycle.CheckAppealEligibility(c, now, s.cfg.AppealWindow()); err != nil {
		return nil, err
	}

	c.AppealReason = strings.TrimSpace(in.Reason)
	c.AppealAttachments = fillAttachmentIDs(in.Attachments)
	c.AppealSubmittedAt = now
	c.Status = store.StatusAppealed
	entry := store.ChangeEntry{
		Action: lifecycle.StatusChangeAction(c.Status),
		Actor:  actor,
		Fields: []string{"appeal_reason", "appeal_attachments", "appeal_submitted_at", "case_status"},
	}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "case.appeal.submit", caseID)
	s.dispatch(ctx, notify.TemplateAppealSubmitted,
		"Appeal submitted for case "+caseID, []string{c.Reported}, casePayload(c))
	return c, nil
}

type ResolveAppealInput struct {
	FinalVerdict       store.FinalVerdict    `json:"final_verdict"`
	ReviewComments     string                `json:"review_comments"`
	RevisedCategory    store.OffenceCategory `json:"revised_category,omitempty"`
	RevisedSubCategory string                `json:"revised_sub_category,omitempty"`
	RevisedLevel       int                   `json:"revised_level,omitempty"`
	Punishment         string                `json:"punishment,omitempty"`
}

// ResolveAppeal ends an appealed case with a final review; the case always
// lands on Final Decision.
func (s *Service) ResolveAppeal(ctx context.Context, actor, caseID string, in ResolveAppealInput) (*store.Case, error) {
	if strings.TrimSpace(in.ReviewComments) == "" {
		return nil, lifecycle.NewError(lifecycle.KindValidation, "review comments are required")
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	changed, err := lifecycle.ApplyAppealResolution(c, lifecycle.Resolution{
		FinalVerdict:   in.FinalVerdict,
		ReviewComments: strings.TrimSpace(in.ReviewComments),
		NewCategory:    in.RevisedCategory,
		NewSubCategory: strings.TrimSpace(in.RevisedSubCategory),
		NewLevel:       in.RevisedLevel,
		NewPunishment:  strings.TrimSpace(in.Punishment),
	})
	if err != nil {
		return nil, err
	}
	entry := store.ChangeEntry{Action: lifecycle.StatusChangeAction(c.Status), Actor: actor, Fields: changed}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return nil, err
	}
	s.checkIncidentClosure(ctx, c.IncidentID)
	s.audit(ctx, actor, "case.appeal.resolve", fmt.Sprintf("%s %s", caseID, in.FinalVerdict))
	s.dispatch(ctx, notify.TemplateAppealResolved,
		"Appeal resolved for case "+caseID, []string{c.Reported}, casePayload(c))
	return c, nil
}

// RequestMoreInvestigation sends a submitted investigation back to the
// investigator without recording a verdict.
func (s *Service) RequestMoreInvestigation(ctx context.Context, actor, caseID string) (*store.Case, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	if err := lifecycle.CheckTransition(c.Status, store.StatusPendingInvestigation); err != nil {
		return nil, err
	}
	c.Status = store.StatusPendingInvestigation
	entry := store.ChangeEntry{
		Action: lifecycle.StatusChangeAction(c.Status),
		Actor:  actor,
		Fields: []string{"case_status"},
	}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "case.investigation.reopen", caseID)
	return c, nil
}

// SweepExpiredAppealWindows finalizes Verdict Given cases whose appeal window
// has lapsed, then re-checks closure of their incidents. Run by the cron
// sweeper; safe to run at any time.
func (s *Service) SweepExpiredAppealWindows(ctx context.Context) (int, error) {
	cases, err := s.cases.List(ctx, store.CaseFilter{Status: store.StatusVerdictGiven})
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	window := s.cfg.AppealWindow()
	swept := 0
	for i := range cases {
		if !lifecycle.AppealWindowExpired(&cases[i], now, window) {
			continue
		}
		if err := s.finalizeExpired(ctx, cases[i].ID); err != nil {
			s.logger.Errorf("sweep case %s: %v", cases[i].ID, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		s.logger.Printf("appeal-window sweep finalized %d case(s)", swept)
	}
	return swept, nil
}

func (s *Service) finalizeExpired(ctx context.Context, caseID string) error {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return err
	}
	unlock := s.lockIncident(c.IncidentID)
	defer unlock()
	if c, err = s.getCase(ctx, caseID); err != nil {
		return err
	}
	if !lifecycle.AppealWindowExpired(c, time.Now().UTC(), s.cfg.AppealWindow()) {
		return nil
	}
	if err := lifecycle.CheckTransition(c.Status, store.StatusFinalDecision); err != nil {
		return err
	}
	c.Status = store.StatusFinalDecision
	entry := store.ChangeEntry{
		Action: lifecycle.StatusChangeAction(c.Status),
		Actor:  systemActor,
		Fields: []string{"case_status"},
	}
	if err := s.cases.Update(ctx, c, c.UpdatedAt, entry); err != nil {
		return err
	}
	s.checkIncidentClosure(ctx, c.IncidentID)
	s.audit(ctx, systemActor, "case.appeal_window.expire", caseID)
	return nil
}
