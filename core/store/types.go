package store

import "time"

// CaseStatus is the closed set of disciplinary case states. The wire values
// are the display strings the registry has always used.
type CaseStatus string

const (
	StatusPendingInvestigation   CaseStatus = "Pending Investigation"
	StatusInvestigationSubmitted CaseStatus = "Investigation Submitted"
	StatusVerdictGiven           CaseStatus = "Verdict Given"
	StatusAppealed               CaseStatus = "Appealed"
	StatusFinalDecision          CaseStatus = "Final Decision"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusPendingInvestigation, StatusInvestigationSubmitted, StatusVerdictGiven, StatusAppealed, StatusFinalDecision:
		return true
	}
	return false
}

// Terminal reports whether no further transition out of s is permitted.
func (s CaseStatus) Terminal() bool {
	return s == StatusFinalDecision
}

type IncidentStatus string

const (
	IncidentOpen   IncidentStatus = "Open"
	IncidentClosed IncidentStatus = "Closed"
)

type Verdict string

const (
	VerdictNone      Verdict = ""
	VerdictGuilty    Verdict = "Guilty"
	VerdictNotGuilty Verdict = "Not Guilty"
)

func (v Verdict) Valid() bool {
	return v == VerdictGuilty || v == VerdictNotGuilty
}

type OffenceCategory string

const (
	CategoryStudentCode    OffenceCategory = "student code"
	CategoryInternshipCode OffenceCategory = "internship code"
)

func (c OffenceCategory) Valid() bool {
	return c == CategoryStudentCode || c == CategoryInternshipCode
}

const (
	MinOffenceLevel = 1
	MaxOffenceLevel = 4
)

// FinalVerdict is the outcome of an appeal review.
type FinalVerdict string

const (
	FinalUphold      FinalVerdict = "Uphold Original"
	FinalOverturn    FinalVerdict = "Overturn to Not Guilty"
	FinalModifyLevel FinalVerdict = "Modify Level"
)

func (v FinalVerdict) Valid() bool {
	return v == FinalUphold || v == FinalOverturn || v == FinalModifyLevel
}

// AttachmentRef points at a stored file; the registry never holds file bytes.
type AttachmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ChangeEntry is one line of the append-only per-record change-log. Action is
// "status_changed_to_<NewStatus>" when the mutation moved the status, else
// "updated"; Fields lists the field names the mutation touched.
type ChangeEntry struct {
	Action string    `json:"action"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
	Fields []string  `json:"fields,omitempty"`
}

const (
	ChangeActionCreated = "created"
	ChangeActionUpdated = "updated"
)

// Incident is an event report; parent of one or more Cases.
type Incident struct {
	ID                  string          `json:"id"`
	Complainant         string          `json:"complainant"`
	ComplainantCategory string          `json:"complainant_category"`
	OccurredAt          time.Time       `json:"occurred_at"`
	ReportedAt          time.Time       `json:"reported_at"`
	Description         string          `json:"description"`
	Attachments         []AttachmentRef `json:"attachments,omitempty"`
	Status              IncidentStatus  `json:"status"`
	UpdatedBy           string          `json:"updated_by"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ChangeLog           []ChangeEntry   `json:"change_log,omitempty"`
}

// Case is one reported individual's disciplinary track under an Incident.
// Created in Pending Investigation; mutated only through the workflow
// operations; immutable once Final Decision is reached.
type Case struct {
	ID         string `json:"id"`
	IncidentID string `json:"incident_id"`
	Reported   string `json:"reported"`
	Squad      string `json:"squad,omitempty"`
	Campus     string `json:"campus,omitempty"`

	Category    OffenceCategory `json:"category,omitempty"`
	SubCategory string          `json:"sub_category,omitempty"`
	Level       int             `json:"level,omitempty"`
	Comments    string          `json:"comments,omitempty"`

	// Attachments mirrors the parent incident's set; the other sets are
	// per-case and never synced.
	Attachments             []AttachmentRef `json:"attachments,omitempty"`
	InvestigatorAttachments []AttachmentRef `json:"investigator_attachments,omitempty"`
	ApproverAttachments     []AttachmentRef `json:"approver_attachments,omitempty"`

	Verdict           Verdict    `json:"verdict,omitempty"`
	Punishment        string     `json:"punishment,omitempty"`
	Status            CaseStatus `json:"case_status"`
	VerdictRecordedAt time.Time  `json:"verdict_recorded_at,omitzero"`

	AppealReason      string          `json:"appeal_reason,omitempty"`
	AppealAttachments []AttachmentRef `json:"appeal_attachments,omitempty"`
	AppealSubmittedAt time.Time       `json:"appeal_submitted_at,omitzero"`
	ReviewComments    string          `json:"review_comments,omitempty"`

	UpdatedBy string        `json:"updated_by"`
	UpdatedAt time.Time     `json:"updated_at"`
	ChangeLog []ChangeEntry `json:"change_log,omitempty"`
}

// CaseFilter narrows List results; zero fields match everything.
type CaseFilter struct {
	IncidentID string
	Status     CaseStatus
	Reported   string
	Squad      string
	Campus     string
}
