package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntryType classifies an attendance session.
type EntryType string

const (
	EntryTypeNormal EntryType = "normal"
	EntryTypeBypass EntryType = "bypass"
	EntryTypeGroup  EntryType = "group_entry"
)

// Valid reports whether the value is one of the recognised entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeNormal, EntryTypeBypass, EntryTypeGroup:
		return true
	default:
		return false
	}
}

// UnmarshalJSON keeps the stored value verbatim. Non-string payloads are kept
// as their raw JSON text so the classifier can report and coerce them.
func (t *EntryType) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*t = EntryType(s)
		return nil
	}
	*t = EntryType(string(trimmed))
	return nil
}

// BypassDetails documents a manually approved verification skip.
type BypassDetails struct {
	Reason     string `json:"reason"`
	ApprovedBy string `json:"approved_by"`
	ApprovedAt string `json:"approved_at"`
}

// LogEntry is one arrival/departure session inside an AttendanceRecord.
// Timestamps are kept as stored ISO-8601 strings; they may be naive or carry an offset.
type LogEntry struct {
	Arrival                   string         `json:"arrival,omitempty"`
	Departure                 *string        `json:"departure"`
	Duration                  *string        `json:"duration"`
	EntryType                 EntryType      `json:"entry_type,omitempty"`
	QRVerified                bool           `json:"qr_verified,omitempty"`
	QRVerificationTime        *string        `json:"qr_verification_time,omitempty"`
	FaceVerified              bool           `json:"face_verified,omitempty"`
	FaceVerificationTime      *string        `json:"face_verification_time,omitempty"`
	FaceImagePath             *string        `json:"face_image_path,omitempty"`
	VerifiedByInstructor      *string        `json:"verified_by_instructor,omitempty"`
	GroupInstructorID         *string        `json:"group_instructor_id,omitempty"`
	BypassDetails             *BypassDetails `json:"bypass_details,omitempty"`
	DepartureVerifiedBy       *string        `json:"departure_verified_by,omitempty"`
	DepartureVerificationTime *string        `json:"departure_verification_time,omitempty"`
}

// UnmarshalJSON decodes a stored entry leniently. Ledger rows were written by
// several generations of clients, so flags and references tolerate loose types.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	type strictFields struct {
		Arrival                   *string        `json:"arrival"`
		Departure                 *string        `json:"departure"`
		Duration                  *string        `json:"duration"`
		EntryType                 EntryType      `json:"entry_type"`
		QRVerificationTime        *string        `json:"qr_verification_time"`
		FaceVerificationTime      *string        `json:"face_verification_time"`
		FaceImagePath             *string        `json:"face_image_path"`
		BypassDetails             *BypassDetails `json:"bypass_details"`
		DepartureVerificationTime *string        `json:"departure_verification_time"`
	}
	type looseFields struct {
		QRVerified           json.RawMessage `json:"qr_verified"`
		FaceVerified         json.RawMessage `json:"face_verified"`
		VerifiedByInstructor json.RawMessage `json:"verified_by_instructor"`
		GroupInstructorID    json.RawMessage `json:"group_instructor_id"`
		DepartureVerifiedBy  json.RawMessage `json:"departure_verified_by"`
	}

	var strict strictFields
	if err := json.Unmarshal(data, &strict); err != nil {
		return fmt.Errorf("decode log entry: %w", err)
	}
	var loose looseFields
	if err := json.Unmarshal(data, &loose); err != nil {
		return fmt.Errorf("decode log entry flags: %w", err)
	}

	*e = LogEntry{
		Departure:                 nonEmpty(strict.Departure),
		Duration:                  strict.Duration,
		EntryType:                 strict.EntryType,
		QRVerified:                looseBool(loose.QRVerified),
		QRVerificationTime:        nonEmpty(strict.QRVerificationTime),
		FaceVerified:              looseBool(loose.FaceVerified),
		FaceVerificationTime:      nonEmpty(strict.FaceVerificationTime),
		FaceImagePath:             strict.FaceImagePath,
		VerifiedByInstructor:      looseRef(loose.VerifiedByInstructor),
		GroupInstructorID:         looseRef(loose.GroupInstructorID),
		BypassDetails:             strict.BypassDetails,
		DepartureVerifiedBy:       looseRef(loose.DepartureVerifiedBy),
		DepartureVerificationTime: nonEmpty(strict.DepartureVerificationTime),
	}
	if strict.Arrival != nil {
		e.Arrival = strings.TrimSpace(*strict.Arrival)
	}
	return nil
}

// IsOpen reports whether the session has no recorded departure.
func (e LogEntry) IsOpen() bool {
	return e.Departure == nil || strings.TrimSpace(*e.Departure) == ""
}

// TimeLogs is the ordered, append-only session list persisted as JSONB.
type TimeLogs []LogEntry

// Value marshals the logs for persistence.
func (l TimeLogs) Value() (driver.Value, error) {
	if l == nil {
		l = TimeLogs{}
	}
	data, err := json.Marshal([]LogEntry(l))
	if err != nil {
		return nil, fmt.Errorf("marshal time logs: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the log slice.
func (l *TimeLogs) Scan(value interface{}) error {
	if value == nil {
		*l = TimeLogs{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TimeLogs", value)
	}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = TimeLogs{}
		return nil
	}
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("unmarshal time logs: %w", err)
	}
	*l = entries
	return nil
}

// Last returns the most recent entry, if any.
func (l TimeLogs) Last() (LogEntry, bool) {
	if len(l) == 0 {
		return LogEntry{}, false
	}
	return l[len(l)-1], true
}

// Clone returns an independent copy of the slice. Pointer fields are shared,
// which is safe because entries are replaced rather than edited in place.
func (l TimeLogs) Clone() TimeLogs {
	out := make(TimeLogs, len(l))
	copy(out, l)
	return out
}

// WithAppended returns a new sequence with entry added at the end.
func (l TimeLogs) WithAppended(entry LogEntry) TimeLogs {
	out := make(TimeLogs, len(l), len(l)+1)
	copy(out, l)
	return append(out, entry)
}

// WithLastReplaced returns a new sequence whose last element is transformed by fn.
func (l TimeLogs) WithLastReplaced(fn func(LogEntry) LogEntry) TimeLogs {
	out := l.Clone()
	if len(out) == 0 {
		return out
	}
	out[len(out)-1] = fn(out[len(out)-1])
	return out
}

// AttendanceRecord is the per-user, per-day attendance ledger row.
type AttendanceRecord struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	EntryDate          time.Time `db:"entry_date" json:"entry_date"`
	TimeLogs           TimeLogs  `db:"time_logs" json:"time_logs"`
	FaceImagePath      *string   `db:"face_image_path" json:"face_image_path,omitempty"`
	VerifyingAppUserID *string   `db:"verifying_app_user_id" json:"verifying_app_user_id,omitempty"`
	IsInstructor       bool      `db:"is_instructor" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// EntryDateKey returns the record's calendar date as YYYY-MM-DD.
func (r AttendanceRecord) EntryDateKey() string {
	return r.EntryDate.Format("2006-01-02")
}

// AttendanceRecordFilter scopes record source queries.
type AttendanceRecordFilter struct {
	DateFrom      time.Time
	DateTo        time.Time
	InstitutionID string
	UserID        string
}

// UserAttendanceHistory is the per-user ledger view.
type UserAttendanceHistory struct {
	User    UserInfo              `json:"user"`
	Records []AttendanceRecord    `json:"entry_records"`
	Summary UserAttendanceSummary `json:"summary"`
}

// UserAttendanceSummary aggregates a user's ledger.
type UserAttendanceSummary struct {
	TotalDays           int `json:"total_days"`
	TotalEntries        int `json:"total_entries"`
	NormalEntries       int `json:"normal_entries"`
	BypassEntries       int `json:"bypass_entries"`
	FaceVerifiedEntries int `json:"face_verified_entries"`
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// looseBool reads JSON booleans, non-zero numbers and boolean-like strings
// ("true", "1", "t") as true.
func looseBool(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case 't', 'f', 'n':
		return bytes.Equal(trimmed, []byte("true"))
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return false
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && v
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return false
		}
		return n != 0
	}
}

func looseRef(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch string(trimmed) {
	case "null", "false", `""`:
		return nil
	case "true":
		v := "true"
		return &v
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		v := n.String()
		return &v
	}
	return nil
}
