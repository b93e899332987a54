package extract

import (
	"regexp"
	"strings"
	"time"
)

// ISOLayout is the normalized timestamp format: wall clock, no offset.
const ISOLayout = "2006-01-02T15:04:05"

// timestampLayouts are tried in order; the first that parses wins.
// A "2" day or month also accepts a leading zero.
var timestampLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2/1/2006 15:04:05",
	"2006-1-2 15:04:05",
}

var (
	weekdayTimestampRe = regexp.MustCompile(
		`\b(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun),\s+\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}\s+\d{1,2}:\d{2}:\d{2}(?:[ \t]+[A-Z]{2,5}\b)?`)
	numericTimestampRe = regexp.MustCompile(
		`\b(?:\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{1,2}-\d{1,2})\s+\d{1,2}:\d{2}:\d{2}\b`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeTimestamp parses raw against the known layouts. It returns raw
// unchanged together with its ISO form, or an empty ISO string when no
// layout matches. When raw carries extra text around a timestamp, the first
// timestamp found inside it is used.
func NormalizeTimestamp(raw string) (string, string) {
	s := spaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	if s == "" {
		return raw, ""
	}
	if iso := parseLayouts(s); iso != "" {
		return raw, iso
	}
	if found := findTimestamp(s); found != "" && found != s {
		return raw, parseLayouts(found)
	}
	return raw, ""
}

func parseLayouts(s string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(ISOLayout)
		}
	}
	return ""
}

// findTimestamp returns the first timestamp-looking substring of s.
func findTimestamp(s string) string {
	if m := weekdayTimestampRe.FindString(s); m != "" {
		return m
	}
	return numericTimestampRe.FindString(s)
}

// removeTimestamps blanks every timestamp so its digits are not taken as a code.
func removeTimestamps(s string) string {
	s = weekdayTimestampRe.ReplaceAllString(s, " ")
	return numericTimestampRe.ReplaceAllString(s, " ")
}
