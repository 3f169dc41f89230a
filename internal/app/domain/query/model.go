package query

import "time"

// MaxFieldLength caps the stored referrer and term; longer values are
// truncated, never rejected.
const MaxFieldLength = 255

// Record is one captured search for a user: where it was issued and what was
// typed.
type Record struct {
	ID        string
	UserID    string
	Referrer  string
	Term      string
	CreatedAt time.Time
}

// Truncate trims a raw value to the storable length.
func Truncate(v string) string {
	if len(v) > MaxFieldLength {
		return v[:MaxFieldLength]
	}
	return v
}
