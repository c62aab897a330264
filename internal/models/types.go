package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found in the config store.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidAdType is returned for ad types outside the supported set.
	ErrInvalidAdType = errors.New("invalid ad type")
	// ErrInvalidPage is returned for pages outside the supported set.
	ErrInvalidPage = errors.New("invalid page")
	// ErrInvalidTrigger is returned for popup triggers outside the supported set.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// AdType identifies the creative slot an ad script is written for. Scripts
// sharing an AdType are interchangeable for rotation.
type AdType string

const (
	AdTypeBanner728x90  AdType = "banner_728x90"
	AdTypeBanner468x60  AdType = "banner_468x60"
	AdTypeBanner300x250 AdType = "banner_300x250"
	AdTypeBanner320x50  AdType = "banner_320x50"
	AdTypeNative        AdType = "native"
	AdTypeSocialBar     AdType = "social_bar"
	AdTypePopup         AdType = "popup"
)

var adTypes = map[AdType]struct{}{
	AdTypeBanner728x90:  {},
	AdTypeBanner468x60:  {},
	AdTypeBanner300x250: {},
	AdTypeBanner320x50:  {},
	AdTypeNative:        {},
	AdTypeSocialBar:     {},
	AdTypePopup:         {},
}

// Valid reports whether t is a supported ad type.
func (t AdType) Valid() bool {
	_, ok := adTypes[t]
	return ok
}

// ParseAdType converts s into an AdType.
func ParseAdType(s string) (AdType, error) {
	t := AdType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAdType, s)
	}
	return t, nil
}

// Page is the site section a zone belongs to.
type Page string

const (
	PageHome     Page = "home"
	PageWatch    Page = "watch"
	PageDownload Page = "download"
	PageLiveTV   Page = "live-tv"
	PageBrowse   Page = "browse"
	PageAll      Page = "all"
)

// Valid reports whether p is a supported page.
func (p Page) Valid() bool {
	switch p {
	case PageHome, PageWatch, PageDownload, PageLiveTV, PageBrowse, PageAll:
		return true
	}
	return false
}

// ParsePage converts s into a Page.
func ParsePage(s string) (Page, error) {
	p := Page(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPage, s)
	}
	return p, nil
}

// Trigger decides when a popup fires once it has been selected.
type Trigger string

const (
	TriggerLoad       Trigger = "load"
	TriggerScroll     Trigger = "scroll"
	TriggerClick      Trigger = "click"
	TriggerTime       Trigger = "time"
	TriggerExitIntent Trigger = "exit_intent"
)

// Valid reports whether t is a supported trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerLoad, TriggerScroll, TriggerClick, TriggerTime, TriggerExitIntent:
		return true
	}
	return false
}
