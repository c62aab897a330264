package models

import "time"

// FrequencyRecord counts displays of one ad type inside a rolling window.
// Timestamp is the window start in Unix milliseconds.
type FrequencyRecord struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"`
}

// Expired reports whether the record's window has elapsed at now.
func (r FrequencyRecord) Expired(now time.Time, window time.Duration) bool {
	return now.UnixMilli()-r.Timestamp > window.Milliseconds()
}

// FrequencyMap is the per-visitor frequency state keyed by ad type. It is
// always persisted and replaced as a whole.
type FrequencyMap map[AdType]FrequencyRecord
