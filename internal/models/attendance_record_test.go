package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEntryUnmarshalLenient(t *testing.T) {
	raw := `{
		"arrival": " 2024-03-21T09:00:00 ",
		"departure": "",
		"entry_type": 7,
		"qr_verified": "yes",
		"face_verified": true,
		"verified_by_instructor": 42,
		"group_instructor_id": null,
		"face_verification_time": "2024-03-21T09:01:00"
	}`

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))

	assert.Equal(t, "2024-03-21T09:00:00", entry.Arrival)
	assert.Nil(t, entry.Departure)
	assert.True(t, entry.IsOpen())
	assert.Equal(t, EntryType("7"), entry.EntryType)
	assert.False(t, entry.EntryType.Valid())
	assert.False(t, entry.QRVerified)
	assert.True(t, entry.FaceVerified)
	require.NotNil(t, entry.VerifiedByInstructor)
	assert.Equal(t, "42", *entry.VerifiedByInstructor)
	assert.Nil(t, entry.GroupInstructorID)
}

func TestLogEntryUnmarshalFlagForms(t *testing.T) {
	cases := map[string]bool{
		`true`:    true,
		`"true"`:  true,
		`"TRUE"`:  true,
		`"1"`:     true,
		`1`:       true,
		`0.5`:     true,
		`false`:   false,
		`"false"`: false,
		`0`:       false,
		`""`:      false,
		`null`:    false,
		`"yes"`:   false,
	}
	for raw, want := range cases {
		var entry LogEntry
		doc := `{"arrival":"2024-03-21T09:00:00","face_verified":` + raw + `,"qr_verified":` + raw + `}`
		require.NoError(t, json.Unmarshal([]byte(doc), &entry), raw)
		assert.Equal(t, want, entry.FaceVerified, raw)
		assert.Equal(t, want, entry.QRVerified, raw)
	}
}

func TestLogEntryUnmarshalInstructorFlag(t *testing.T) {
	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(`{"arrival":"2024-03-21T09:00:00","entry_type":"group_entry","verified_by_instructor":true}`), &entry))
	require.NotNil(t, entry.VerifiedByInstructor)
	assert.Equal(t, EntryTypeGroup, entry.EntryType)

	require.NoError(t, json.Unmarshal([]byte(`{"arrival":"2024-03-21T09:00:00","verified_by_instructor":false}`), &entry))
	assert.Nil(t, entry.VerifiedByInstructor)
}

func TestTimeLogsScanAndValue(t *testing.T) {
	var logs TimeLogs
	require.NoError(t, logs.Scan([]byte(`[{"arrival":"2024-03-21T09:00:00","departure":"2024-03-21T10:00:00","qr_verified":true}]`)))
	require.Len(t, logs, 1)
	assert.False(t, logs[0].IsOpen())

	require.NoError(t, logs.Scan(nil))
	assert.Empty(t, logs)
	assert.Error(t, logs.Scan(42))

	value, err := TimeLogs(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value.([]byte)))
}

func TestTimeLogsCopyOnWrite(t *testing.T) {
	departure := "2024-03-21T10:00:00"
	original := TimeLogs{{Arrival: "2024-03-21T09:00:00"}}

	appended := original.WithAppended(LogEntry{Arrival: "2024-03-21T11:00:00"})
	closed := original.WithLastReplaced(func(e LogEntry) LogEntry {
		e.Departure = &departure
		return e
	})

	assert.Len(t, original, 1)
	assert.True(t, original[0].IsOpen())
	assert.Len(t, appended, 2)
	assert.False(t, closed[0].IsOpen())
	assert.Empty(t, TimeLogs{}.WithLastReplaced(func(e LogEntry) LogEntry { return e }))
}
