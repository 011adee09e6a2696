package analytics

import "github.com/noah-isme/visitor-attendance-api/internal/models"

// Classification is the verification outcome of a single log entry.
type Classification struct {
	EntryType models.EntryType
	// Recognized is false when a non-empty entry_type was coerced to normal.
	Recognized   bool
	Success      bool
	GroupSuccess bool
	FaceSuccess  bool
	QRSuccess    bool
}

// Classify applies the verification rules to one entry.
//
// Group entries succeed when an instructor vouched for them or the member was
// face verified. Normal and bypass entries need both a face and a QR match.
// Instructor-verified group members count towards face success as well.
func Classify(entry models.LogEntry) Classification {
	c := Classification{EntryType: entry.EntryType, Recognized: true}
	if !entry.EntryType.Valid() {
		c.Recognized = entry.EntryType == ""
		c.EntryType = models.EntryTypeNormal
	}

	instructorVerified := entry.VerifiedByInstructor != nil
	switch c.EntryType {
	case models.EntryTypeGroup:
		c.Success = instructorVerified || entry.FaceVerified
		c.GroupSuccess = c.Success
		c.FaceSuccess = entry.FaceVerified || instructorVerified
	default:
		c.Success = entry.FaceVerified && entry.QRVerified
		c.FaceSuccess = entry.FaceVerified
	}
	c.QRSuccess = entry.QRVerified
	return c
}

// VerificationType names how an entry's identity was confirmed.
func (c Classification) VerificationType(entry models.LogEntry) string {
	if c.EntryType == models.EntryTypeGroup && entry.VerifiedByInstructor != nil {
		return "instructor"
	}
	return "normal"
}
