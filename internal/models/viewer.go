package models

// Viewer describes who a placement is being rendered for. Device fields are
// derived from the User-Agent and Country from the client IP; they enrich
// ad events and never gate delivery.
type Viewer struct {
	VisitorID  string
	DeviceType string // "desktop", "mobile", "tablet" or "other"
	OS         string
	Browser    string
	IsBot      bool
	Country    string // ISO 3166-1 alpha-2, empty when unknown
}
