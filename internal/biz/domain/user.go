package domain

import "time"

// Watermark is the per-user incremental scan state. Last holds, per platform,
// the upper bound of the last window whose list call succeeded. An inactive
// user is never scanned.
type Watermark struct {
	UserID    string
	Email     string
	Last      map[Platform]time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LastCheck returns the watermark for a platform, zero if the user has never
// been scanned on it.
func (w *Watermark) LastCheck(p Platform) time.Time {
	if w.Last == nil {
		return time.Time{}
	}
	return w.Last[p]
}

// SetLastCheck records a successful scan upper bound. Advancement is
// monotonic; an older timestamp is ignored.
func (w *Watermark) SetLastCheck(p Platform, t time.Time) {
	if w.Last == nil {
		w.Last = make(map[Platform]time.Time)
	}
	if t.After(w.Last[p]) {
		w.Last[p] = t
	}
}
