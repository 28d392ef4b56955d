package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IncidentsRepo reads and writes Incident records through the record store.
// It owns incident id generation, closure-status updates, and the monotonic
// growth of the incident change-log.
type IncidentsRepo struct {
	records RecordStore
}

func NewIncidentsRepo(records RecordStore) *IncidentsRepo {
	return &IncidentsRepo{records: records}
}

func (r *IncidentsRepo) Get(ctx context.Context, id string) (*Incident, error) {
	rec, err := r.records.Get(ctx, EntityIncidents, strings.TrimSpace(id))
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeIncident(rec)
}

func (r *IncidentsRepo) List(ctx context.Context) ([]Incident, error) {
	recs, err := r.records.List(ctx, EntityIncidents)
	if err != nil {
		return nil, err
	}
	res := make([]Incident, 0, len(recs))
	for i := range recs {
		inc, err := decodeIncident(&recs[i])
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, nil
}

// Create assigns the next registry number for the current year and appends
// the record with its initial change-log entry. The next-sequence scan is not
// safe under concurrent creation; callers serialize incident creation.
func (r *IncidentsRepo) Create(ctx context.Context, inc *Incident, regFormat string) error {
	existing, err := r.records.List(ctx, EntityIncidents)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(existing))
	for _, rec := range existing {
		ids = append(ids, rec.ID)
	}
	now := time.Now().UTC()
	inc.ID = nextRegNo(regFormat, now.Year(), ids)
	if inc.Status == "" {
		inc.Status = IncidentOpen
	}
	if inc.ReportedAt.IsZero() {
		inc.ReportedAt = now
	}
	inc.UpdatedAt = now
	if inc.UpdatedBy == "" {
		inc.UpdatedBy = inc.Complainant
	}
	inc.ChangeLog = append(inc.ChangeLog, ChangeEntry{Action: ChangeActionCreated, Actor: inc.UpdatedBy, At: now})
	rec := &Record{ID: inc.ID, Fields: encodeIncident(inc)}
	return r.records.Append(ctx, EntityIncidents, rec)
}

// Update persists inc with a compare-on-write check: expected must equal the
// stored record's last-modified timestamp, else ErrConflict. One change-log
// entry is appended per call; the log is never rewritten.
func (r *IncidentsRepo) Update(ctx context.Context, inc *Incident, expected time.Time, entry ChangeEntry) error {
	rec, err := r.records.Get(ctx, EntityIncidents, inc.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("incident %s vanished during update", inc.ID)
	}
	storedAt, err := getTime(rec.Fields, "updated_at")
	if err != nil {
		return err
	}
	if !storedAt.Equal(expected) {
		return ErrConflict
	}
	stored, err := decodeIncident(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.At = now
	inc.ChangeLog = append(stored.ChangeLog, entry)
	inc.UpdatedBy = entry.Actor
	inc.UpdatedAt = now
	out := &Record{ID: inc.ID, Fields: encodeIncident(inc)}
	return r.records.UpdateAt(ctx, EntityIncidents, rec.Pos, out)
}

func encodeIncident(inc *Incident) map[string]string {
	fields := map[string]string{
		"incident_id":          inc.ID,
		"complainant":          inc.Complainant,
		"complainant_category": inc.ComplainantCategory,
		"description":          inc.Description,
		"status":               string(inc.Status),
		"updated_by":           inc.UpdatedBy,
	}
	putTime(fields, "occurred_at", inc.OccurredAt)
	putTime(fields, "reported_at", inc.ReportedAt)
	putTime(fields, "updated_at", inc.UpdatedAt)
	putJSON(fields, "attachments", inc.Attachments)
	putJSON(fields, "change_log", inc.ChangeLog)
	return fields
}

func decodeIncident(rec *Record) (*Incident, error) {
	inc := &Incident{
		ID:                  rec.Fields["incident_id"],
		Complainant:         rec.Fields["complainant"],
		ComplainantCategory: rec.Fields["complainant_category"],
		Description:         rec.Fields["description"],
		Status:              IncidentStatus(rec.Fields["status"]),
		UpdatedBy:           rec.Fields["updated_by"],
	}
	if inc.ID == "" {
		inc.ID = rec.ID
	}
	if inc.Status == "" {
		inc.Status = IncidentOpen
	}
	var err error
	if inc.OccurredAt, err = getTime(rec.Fields, "occurred_at"); err != nil {
		return nil, err
	}
	if inc.ReportedAt, err = getTime(rec.Fields, "reported_at"); err != nil {
		return nil, err
	}
	if inc.UpdatedAt, err = getTime(rec.Fields, "updated_at"); err != nil {
		return nil, err
	}
	if inc.Attachments, err = getAttachments(rec.Fields, "attachments"); err != nil {
		return nil, err
	}
	if inc.ChangeLog, err = getChangeLog(rec.Fields, "change_log"); err != nil {
		return nil, err
	}
	return inc, nil
}

var seqToken = regexp.MustCompile(`\{seq(?::(\d+))?\}`)

// nextRegNo scans existing ids sharing the format's derived prefix for the
// given year, takes the maximum numeric suffix, and increments. Collisions
// are detected by construction rather than assumed impossible.
func nextRegNo(format string, year int, existing []string) string {
	if strings.TrimSpace(format) == "" {
		format = "IR-{year}-{seq:04}"
	}
	resolved := strings.ReplaceAll(format, "{year}", strconv.Itoa(year))
	m := seqToken.FindStringSubmatchIndex(resolved)
	if m == nil {
		return resolved
	}
	prefix := resolved[:m[0]]
	width := 0
	if m[2] >= 0 {
		width, _ = strconv.Atoi(resolved[m[2]:m[3]])
	}
	maxSeq := int64(0)
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix), 10, 64); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	seq := maxSeq + 1
	if width > 0 {
		return prefix + fmt.Sprintf("%0*d", width, seq)
	}
	return prefix + strconv.FormatInt(seq, 10)
}

// SortByReportedAt orders newest first for listings.
func SortByReportedAt(incidents []Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].ReportedAt.After(incidents[j].ReportedAt)
	})
}
