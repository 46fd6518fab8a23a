package places

import "time"

// VisitIdentity selects the key duplicate visits are detected by.
type VisitIdentity int

const (
	// VisitIdentityTimestamp treats any existing visit with the same
	// visit_date as a duplicate, regardless of URL.
	VisitIdentityTimestamp VisitIdentity = iota

	// VisitIdentityPlace only treats a visit as a duplicate when the same
	// place already has a visit at that visit_date.
	VisitIdentityPlace
)

// ParseVisitIdentity maps a config value to a VisitIdentity.
func ParseVisitIdentity(s string) (VisitIdentity, bool) {
	switch s {
	case "", "timestamp":
		return VisitIdentityTimestamp, true
	case "place":
		return VisitIdentityPlace, true
	default:
		return 0, false
	}
}

func (v VisitIdentity) String() string {
	if v == VisitIdentityPlace {
		return "place"
	}
	return "timestamp"
}

// OriginRef identifies a moz_origins row resolved during a batch.
type OriginRef struct {
	ID      int64
	Created bool
}

// PlaceRef identifies a moz_places row resolved during a batch.
type PlaceRef struct {
	ID            int64
	Created       bool
	OriginCreated bool
}

// Result describes what Apply did for one history entry.
type Result struct {
	PlaceID       int64
	Duplicate     bool
	PlaceCreated  bool
	OriginCreated bool
}

// Place is a moz_places row as read back by PlaceByURL.
type Place struct {
	ID            int64
	URL           string
	Title         string
	RevHost       string
	GUID          string
	URLHash       int64
	OriginID      int64
	VisitCount    int64
	LastVisitDate time.Time
}

// Stats holds aggregate counts about a places database.
type Stats struct {
	Schema      string
	Origins     int64
	Places      int64
	Visits      int64
	OldestVisit time.Time
	NewestVisit time.Time
	TopOrigins  []OriginCount
}

// OriginCount pairs an origin with the visits recorded against its places.
type OriginCount struct {
	Origin string
	Visits int64
}
