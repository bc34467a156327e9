// Package timestamp renders backend timestamps as human-readable dates.
package timestamp

import (
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"

	"github.com/roach88/inkwell/internal/doc"
)

type longDate struct {
	layout string
	locale monday.Locale
}

// Long-date formats per supported locale. Layouts use English month names;
// monday translates them.
var formats = map[language.Tag]longDate{
	language.AmericanEnglish: {"January 2, 2006", monday.LocaleEnUS},
	language.BritishEnglish:  {"2 January 2006", monday.LocaleEnGB},
	language.German:          {"2. January 2006", monday.LocaleDeDE},
	language.French:          {"2 January 2006", monday.LocaleFrFR},
}

var matcher = language.NewMatcher([]language.Tag{
	language.AmericanEnglish, // first entry is the fallback
	language.BritishEnglish,
	language.German,
	language.French,
})

// Serializer formats timestamps for one locale and time zone.
type Serializer struct {
	format longDate
	loc    *time.Location
	tag    language.Tag
}

// Default renders en-US long dates in UTC.
var Default = New(language.AmericanEnglish, time.UTC)

// New builds a serializer for the closest supported locale to tag.
// A nil loc means UTC.
func New(tag language.Tag, loc *time.Location) *Serializer {
	_, idx, _ := matcher.Match(tag)
	supported := []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
	}[idx]
	if loc == nil {
		loc = time.UTC
	}
	return &Serializer{format: formats[supported], loc: loc, tag: supported}
}

// Parse builds a serializer from a BCP 47 string and an IANA zone name.
// Empty strings select the defaults (en-US, UTC).
func Parse(locale, zone string) (*Serializer, error) {
	tag := language.AmericanEnglish
	if locale != "" {
		t, err := language.Parse(locale)
		if err != nil {
			return nil, err
		}
		tag = t
	}
	loc := time.UTC
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return nil, err
		}
		loc = l
	}
	return New(tag, loc), nil
}

// Locale returns the matched locale.
func (s *Serializer) Locale() language.Tag {
	return s.tag
}

// Serialize formats v when it is a non-zero timestamp and returns ""
// for anything else, including nil.
func (s *Serializer) Serialize(v doc.Value) string {
	ts, ok := v.(doc.Timestamp)
	if !ok || ts.Time.IsZero() {
		return ""
	}
	return monday.Format(ts.Time.In(s.loc), s.format.layout, s.format.locale)
}

// Serialize formats v with the Default serializer.
func Serialize(v doc.Value) string {
	return Default.Serialize(v)
}
