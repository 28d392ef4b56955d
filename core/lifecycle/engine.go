// Package lifecycle holds the case lifecycle engine: pure decision logic over
// a case's current fields. It owns no data and touches no store; callers apply
// its decisions and persist the result.
package lifecycle

import (
	"fmt"
	"time"

	"kestrel-dcr/core/store"
)

// transitions is the closed status machine. Final Decision has no outgoing
// edges. Appeal resolution bypasses this table: it always lands on Final
// Decision regardless of the edge set.
var transitions = map[store.CaseStatus][]store.CaseStatus{
	store.StatusPendingInvestigation:   {store.StatusInvestigationSubmitted},
	store.StatusInvestigationSubmitted: {store.StatusVerdictGiven, store.StatusPendingInvestigation, store.StatusFinalDecision},
	store.StatusVerdictGiven:           {store.StatusFinalDecision, store.StatusAppealed},
	store.StatusAppealed:               {store.StatusFinalDecision},
	store.StatusFinalDecision:          nil,
}

// CheckTransition rejects any (from, to) pair outside the status table. The
// rejection names both states so the caller can render a precise message.
func CheckTransition(from, to store.CaseStatus) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewError(KindInvalidTransition,
		fmt.Sprintf("cannot move case from %q to %q", from, to))
}

// VerdictOutcome computes the status a case lands on when a verdict is
// recorded. A Not Guilty finding is always final. A Guilty finding is final
// only below the appeal threshold: severity, not guilt alone, gates the
// appeal stage.
func VerdictOutcome(category store.OffenceCategory, level int, verdict store.Verdict) store.CaseStatus {
	if verdict == store.VerdictNotGuilty {
		return store.StatusFinalDecision
	}
	if AppealThresholdMet(category, level) {
		return store.StatusVerdictGiven
	}
	return store.StatusFinalDecision
}

// AppealThresholdMet reports whether the offence is severe enough to be
// appealable: student code level 4, internship code level 3 and up.
func AppealThresholdMet(category store.OffenceCategory, level int) bool {
	switch category {
	case store.CategoryStudentCode:
		return level >= 4
	case store.CategoryInternshipCode:
		return level >= 3
	}
	return false
}

// CheckAppealEligibility accepts an appeal only from Verdict Given, on a
// Guilty verdict, above the severity threshold, and inside the window counted
// from the verdict timestamp. The engine is stateless with respect to
// wall-clock time; now and window come from the caller.
func CheckAppealEligibility(c *store.Case, now time.Time, window time.Duration) error {
	if c.Status != store.StatusVerdictGiven {
		return NewCodedError(KindIneligibleAppeal, DenialWrongStatus,
			fmt.Sprintf("case is %q, appeals are accepted only after a verdict is given", c.Status))
	}
	if c.Verdict != store.VerdictGuilty {
		return NewCodedError(KindIneligibleAppeal, DenialNotGuilty,
			"only guilty verdicts can be appealed")
	}
	if !AppealThresholdMet(c.Category, c.Level) {
		return NewCodedError(KindIneligibleAppeal, DenialLevelTooLow,
			fmt.Sprintf("%s level %d offences are below the appeal threshold", c.Category, c.Level))
	}
	deadline := c.VerdictRecordedAt.Add(window)
	if now.After(deadline) {
		return NewCodedError(KindIneligibleAppeal, DenialWindowExpired,
			fmt.Sprintf("appeal window closed on %s", deadline.UTC().Format(time.RFC3339)))
	}
	return nil
}

// AppealWindowExpired reports whether a Verdict Given case has outlived its
// appeal window; used by the sweeper to finalize unappealed cases.
func AppealWindowExpired(c *store.Case, now time.Time, window time.Duration) bool {
	if c.Status != store.StatusVerdictGiven || c.VerdictRecordedAt.IsZero() {
		return false
	}
	return now.After(c.VerdictRecordedAt.Add(window))
}

// Resolution is an appeal review outcome. Classification fields are partial
// revisions: zero values retain the case's prior values.
type Resolution struct {
	FinalVerdict   store.FinalVerdict
	ReviewComments string
	NewCategory    store.OffenceCategory
	NewSubCategory string
	NewLevel       int
	NewPunishment  string
}

// ApplyAppealResolution mutates c per the resolution and returns the names of
// the fields it changed. All three outcomes end in Final Decision
// unconditionally; only the classification handling differs.
func ApplyAppealResolution(c *store.Case, res Resolution) ([]string, error) {
	if c.Status != store.StatusAppealed {
		return nil, NewError(KindInvalidTransition,
			fmt.Sprintf("cannot resolve appeal on case in %q", c.Status))
	}
	if !res.FinalVerdict.Valid() {
		return nil, NewError(KindValidation, fmt.Sprintf("unknown final verdict %q", res.FinalVerdict))
	}
	changed := []string{"review_comments"}
	c.ReviewComments = res.ReviewComments

	switch res.FinalVerdict {
	case store.FinalOverturn:
		c.Verdict = store.VerdictNotGuilty
		c.Punishment = ""
		changed = append(changed, "verdict", "punishment")
	case store.FinalModifyLevel:
		if res.NewCategory != "" {
			if !res.NewCategory.Valid() {
				return nil, NewError(KindValidation, fmt.Sprintf("unknown category %q", res.NewCategory))
			}
			c.Category = res.NewCategory
			changed = append(changed, "category")
		}
		if res.NewSubCategory != "" {
			c.SubCategory = res.NewSubCategory
			changed = append(changed, "sub_category")
		}
		if res.NewLevel != 0 {
			if res.NewLevel < store.MinOffenceLevel || res.NewLevel > store.MaxOffenceLevel {
				return nil, NewError(KindValidation, fmt.Sprintf("level %d out of range", res.NewLevel))
			}
			c.Level = res.NewLevel
			changed = append(changed, "level")
		}
		if res.NewPunishment != "" {
			c.Punishment = res.NewPunishment
			changed = append(changed, "punishment")
		}
	case store.FinalUphold:
		// classification untouched
	}
	c.Status = store.StatusFinalDecision
	changed = append(changed, "case_status")
	return changed, nil
}

// IncidentShouldClose reports whether every case of an incident has reached
// its terminal state. An incident with zero cases never auto-closes.
func IncidentShouldClose(cases []store.Case) bool {
	if len(cases) == 0 {
		return false
	}
	for i := range cases {
		if !cases[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// StatusChangeAction builds the change-log action literal for a status move.
func StatusChangeAction(to store.CaseStatus) string {
	return "status_changed_to_" + string(to)
}
