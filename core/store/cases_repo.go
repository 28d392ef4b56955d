package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CasesRepo reads and writes Case records through the record store. It owns
// case id generation and the monotonic growth of each case's change-log.
type CasesRepo struct {
	records RecordStore
}

func NewCasesRepo(records RecordStore) *CasesRepo {
	return &CasesRepo{records: records}
}

func (r *CasesRepo) Get(ctx context.Context, id string) (*Case, error) {
	rec, err := r.records.Get(ctx, EntityCases, strings.TrimSpace(id))
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeCase(rec)
}

func (r *CasesRepo) List(ctx context.Context, filter CaseFilter) ([]Case, error) {
	recs, err := r.records.List(ctx, EntityCases)
	if err != nil {
		return nil, err
	}
	var res []Case
	for i := range recs {
		c, err := decodeCase(&recs[i])
		if err != nil {
			return nil, err
		}
		if !matchesFilter(c, filter) {
			continue
		}
		res = append(res, *c)
	}
	return res, nil
}

func (r *CasesRepo) ListByIncident(ctx context.Context, incidentID string) ([]Case, error) {
	return r.List(ctx, CaseFilter{IncidentID: incidentID})
}

func matchesFilter(c *Case, f CaseFilter) bool {
	if f.IncidentID != "" && c.IncidentID != f.IncidentID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Reported != "" && !strings.EqualFold(c.Reported, f.Reported) {
		return false
	}
	if f.Squad != "" && !strings.EqualFold(c.Squad, f.Squad) {
		return false
	}
	if f.Campus != "" && !strings.EqualFold(c.Campus, f.Campus) {
		return false
	}
	return true
}

const caseIDSeparator = "-C"

// NextCaseID scans existing case ids sharing the incident's derived prefix,
// takes the maximum numeric suffix, and increments. Ids stay sortable and
// collision-free within an incident. Not safe under concurrent creation;
// callers serialize case creation per incident.
func (r *CasesRepo) NextCaseID(ctx context.Context, incidentID string) (string, error) {
	recs, err := r.records.List(ctx, EntityCases)
	if err != nil {
		return "", err
	}
	prefix := incidentID + caseIDSeparator
	maxSeq := int64(0)
	for _, rec := range recs {
		if !strings.HasPrefix(rec.ID, prefix) {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimPrefix(rec.ID, prefix), 10, 64); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return fmt.Sprintf("%s%02d", prefix, maxSeq+1), nil
}

// Create appends c with its initial change-log entry. The id must already be
// assigned via NextCaseID under the caller's creation lock.
func (r *CasesRepo) Create(ctx context.Context, c *Case) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("case id not assigned")
	}
	now := time.Now().UTC()
	if c.Status == "" {
		c.Status = StatusPendingInvestigation
	}
	c.UpdatedAt = now
	c.ChangeLog = append(c.ChangeLog, ChangeEntry{Action: ChangeActionCreated, Actor: c.UpdatedBy, At: now})
	rec := &Record{ID: c.ID, Fields: encodeCase(c)}
	return r.records.Append(ctx, EntityCases, rec)
}

// Update persists c with a compare-on-write check: expected must equal the
// stored record's last-modified timestamp, else ErrConflict. Exactly one
// change-log entry is appended per successful call.
func (r *CasesRepo) Update(ctx context.Context, c *Case, expected time.Time, entry ChangeEntry) error {
	rec, err := r.records.Get(ctx, EntityCases, c.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("case %s vanished during update", c.ID)
	}
	storedAt, err := getTime(rec.Fields, "updated_at")
	if err != nil {
		return err
	}
	if !storedAt.Equal(expected) {
		return ErrConflict
	}
	stored, err := decodeCase(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.At = now
	c.ChangeLog = append(stored.ChangeLog, entry)
	c.UpdatedBy = entry.Actor
	c.UpdatedAt = now
	out := &Record{ID: c.ID, Fields: encodeCase(c)}
	return r.records.UpdateAt(ctx, EntityCases, rec.Pos, out)
}

func encodeCase(c *Case) map[string]string {
	fields := map[string]string{
		"case_id":         c.ID,
		"incident_id":     c.IncidentID,
		"reported":        c.Reported,
		"squad":           c.Squad,
		"campus":          c.Campus,
		"category":        string(c.Category),
		"sub_category":    c.SubCategory,
		"level":           strconv.Itoa(c.Level),
		"comments":        c.Comments,
		"verdict":         string(c.Verdict),
		"punishment":      c.Punishment,
		"case_status":     string(c.Status),
		"appeal_reason":   c.AppealReason,
		"review_comments": c.ReviewComments,
		"updated_by":      c.UpdatedBy,
	}
	putTime(fields, "verdict_recorded_at", c.VerdictRecordedAt)
	putTime(fields, "appeal_submitted_at", c.AppealSubmittedAt)
	putTime(fields, "updated_at", c.UpdatedAt)
	putJSON(fields, "attachments", c.Attachments)
	putJSON(fields, "investigator_attachments", c.InvestigatorAttachments)
	putJSON(fields, "approver_attachments", c.ApproverAttachments)
	putJSON(fields, "appeal_attachments", c.AppealAttachments)
	putJSON(fields, "change_log", c.ChangeLog)
	return fields
}

func decodeCase(rec *Record) (*Case, error) {
	c := &Case{
		ID:             rec.Fields["case_id"],
		IncidentID:     rec.Fields["incident_id"],
		Reported:       rec.Fields["reported"],
		Squad:          rec.Fields["squad"],
		Campus:         rec.Fields["campus"],
		Category:       OffenceCategory(rec.Fields["category"]),
		SubCategory:    rec.Fields["sub_category"],
		Comments:       rec.Fields["comments"],
		Verdict:        Verdict(rec.Fields["verdict"]),
		Punishment:     rec.Fields["punishment"],
		Status:         CaseStatus(rec.Fields["case_status"]),
		AppealReason:   rec.Fields["appeal_reason"],
		ReviewComments: rec.Fields["review_comments"],
		UpdatedBy:      rec.Fields["updated_by"],
	}
	if c.ID == "" {
		c.ID = rec.ID
	}
	if c.Status == "" {
		c.Status = StatusPendingInvestigation
	}
	var err error
	if c.Level, err = getInt(rec.Fields, "level"); err != nil {
		return nil, err
	}
	if c.VerdictRecordedAt, err = getTime(rec.Fields, "verdict_recorded_at"); err != nil {
		return nil, err
	}
	if c.AppealSubmittedAt, err = getTime(rec.Fields, "appeal_submitted_at"); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = getTime(rec.Fields, "updated_at"); err != nil {
		return nil, err
	}
	if c.Attachments, err = getAttachments(rec.Fields, "attachments"); err != nil {
		return nil, err
	}
	if c.InvestigatorAttachments, err = getAttachments(rec.Fields, "investigator_attachments"); err != nil {
		return nil, err
	}
	if c.ApproverAttachments, err = getAttachments(rec.Fields, "approver_attachments"); err != nil {
		return nil, err
	}
	if c.AppealAttachments, err = getAttachments(rec.Fields, "appeal_attachments"); err != nil {
		return nil, err
	}
	if c.ChangeLog, err = getChangeLog(rec.Fields, "change_log"); err != nil {
		return nil, err
	}
	return c, nil
}
