package event

import (
	"fmt"
	"strings"
	"time"
)

// KeyPrefix starts every emergency event key. The remainder of the key is
// the event timestamp, so keys sort in creation order.
const KeyPrefix = "emergency-"

// TimestampLayout is ISO8601 in UTC with a fixed nanosecond fraction.
// Fixed width keeps string order identical to time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Source tags what triggered an emergency.
type Source string

const (
	SourceManual Source = "manual"
	SourceVoice  Source = "voice"
	SourceOCR    Source = "ocr"
)

// Sources lists every valid source tag.
var Sources = []Source{SourceManual, SourceVoice, SourceOCR}

// ParseSource validates a raw source tag.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceManual, SourceVoice, SourceOCR:
		return src, nil
	}
	return "", fmt.Errorf("unknown source %q (want manual, voice or ocr)", s)
}

// Location is a best-effort position snapshot. Nil coordinates mean the
// position was unavailable, not zero.
type Location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UnknownLocation returns {lat: null, lng: null}.
func UnknownLocation() Location { return Location{} }

// At returns a known location.
func At(lat, lng float64) Location {
	return Location{Lat: &lat, Lng: &lng}
}

// Known reports whether both coordinates are present.
func (l Location) Known() bool { return l.Lat != nil && l.Lng != nil }

// EmergencyEvent is a single buffered distress signal. All fields are
// fixed at creation.
type EmergencyEvent struct {
	Key         string   `json:"key"`
	Timestamp   string   `json:"timestamp"`
	Source      Source   `json:"source"`
	PlateNumber string   `json:"plateNumber"`
	Location    Location `json:"location"`
}

// Time parses the event timestamp.
func (e EmergencyEvent) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, e.Timestamp)
}

// Validate checks the structural invariants of a stored event.
func (e EmergencyEvent) Validate() error {
	if !strings.HasPrefix(e.Key, KeyPrefix) {
		return fmt.Errorf("event key %q: missing %q prefix", e.Key, KeyPrefix)
	}
	if strings.TrimPrefix(e.Key, KeyPrefix) != e.Timestamp {
		return fmt.Errorf("event key %q does not match timestamp %q", e.Key, e.Timestamp)
	}
	if _, err := e.Time(); err != nil {
		return fmt.Errorf("event %s: invalid timestamp: %w", e.Key, err)
	}
	if _, err := ParseSource(string(e.Source)); err != nil {
		return fmt.Errorf("event %s: %w", e.Key, err)
	}
	return nil
}

// Message renders the SOS text delivered to trusted contacts.
func (e EmergencyEvent) Message() string {
	plate := e.PlateNumber
	if plate == "" {
		plate = "N/A"
	}
	var b strings.Builder
	b.WriteString("🚨 EMERGENCY ALERT - SheRox Safety\n")
	fmt.Fprintf(&b, "Source: %s\n", e.Source)
	fmt.Fprintf(&b, "Plate: %s\n", plate)
	fmt.Fprintf(&b, "Time: %s\n", e.Timestamp)
	if e.Location.Known() {
		lat, lng := *e.Location.Lat, *e.Location.Lng
		fmt.Fprintf(&b, "Location: %.5f, %.5f\n", lat, lng)
		fmt.Fprintf(&b, "Maps: https://maps.google.com/?q=%.5f,%.5f", lat, lng)
	} else {
		b.WriteString("Location: unavailable")
	}
	return b.String()
}
