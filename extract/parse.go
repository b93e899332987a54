package extract

import (
	"regexp"
	"strings"

	"github.com/use-agent/tukibridge/models"
	"golang.org/x/text/unicode/norm"
)

var (
	contentLabelRe  = regexp.MustCompile(`(?i)(?:nội dung|noi dung|content)[ \t]*:[ \t]*([^\n\r]+)`)
	receivedLabelRe = regexp.MustCompile(`(?i)(?:thời gian nhận|thoi gian nhan|received(?: at)?)[ \t]*:[ \t]*([^\n\r]+)`)
	codeRe          = regexp.MustCompile(`\b\d{3,6}\b`)
	urlRe           = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// notFoundMarkers are lowercase phrases the site uses for "no data".
var notFoundMarkers = []string{
	"không tìm thấy",
	"khong tim thay",
	"không có dữ liệu",
	"khong co du lieu",
	"no data",
	"not found",
	"no result",
}

// Parse converts a result area into a FetchResult. A warning banner always
// wins over the payload.
func Parse(area ResultArea) models.FetchResult {
	if w := strings.TrimSpace(area.Warning); w != "" {
		return notFound(w)
	}

	switch p := area.Payload.(type) {
	case Structured:
		return parseStructured(p)
	case RawText:
		return ParseText(string(p))
	default:
		return models.FetchResult{Success: true, ParsePath: models.ParseNone}
	}
}

// ParseText parses the rendered text of the result area.
func ParseText(raw string) models.FetchResult {
	text := strings.TrimSpace(norm.NFC.String(raw))

	if line, ok := findNotFound(text); ok {
		return notFound(line)
	}

	res := models.FetchResult{
		Success:   true,
		Content:   text,
		ParsePath: models.ParseNone,
	}
	res.VerifyLink = firstURL(text)

	if m := contentLabelRe.FindStringSubmatch(text); m != nil {
		res.ParsePath = models.ParseLabeled
		value := strings.TrimSpace(m[1])
		if isURL(value) {
			if res.VerifyLink == "" {
				res.VerifyLink = trimURL(value)
			}
		} else {
			res.Code = codeFromValue(value)
		}
	}

	if m := receivedLabelRe.FindStringSubmatch(text); m != nil {
		res.ParsePath = models.ParseLabeled
		res.ReceivedAtRaw, res.ReceivedAtISO = NormalizeTimestamp(strings.TrimSpace(m[1]))
	}

	heuristic := false
	if res.ReceivedAtRaw == "" {
		if ts := findTimestamp(text); ts != "" {
			res.ReceivedAtRaw, res.ReceivedAtISO = NormalizeTimestamp(ts)
			heuristic = true
		}
	}
	if res.Code == "" && res.ParsePath != models.ParseLabeled {
		stripped := urlRe.ReplaceAllString(removeTimestamps(text), " ")
		if c := codeRe.FindString(stripped); c != "" {
			res.Code = c
			heuristic = true
		}
	}
	if heuristic && res.ParsePath == models.ParseNone {
		res.ParsePath = models.ParseHeuristic
	}
	if res.ParsePath == models.ParseNone && res.VerifyLink != "" {
		res.ParsePath = models.ParseHeuristic
	}
	return res
}

func parseStructured(s Structured) models.FetchResult {
	fields := make(Structured, len(s))
	for k, v := range s {
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	res := models.FetchResult{
		Success:       true,
		Code:          fields.first("code", "result"),
		Content:       fields.first("content"),
		ReceivedAtRaw: fields.first("received_at_raw", "timestamp"),
		ReceivedAtISO: fields.first("received_at", "timestamp_iso"),
		VerifyLink:    fields.first("verify_link", "link"),
		ParsePath:     models.ParseStructured,
	}

	if isURL(res.Code) {
		if res.VerifyLink == "" {
			res.VerifyLink = trimURL(res.Code)
		}
		res.Code = ""
	}
	if res.ReceivedAtISO == "" && res.ReceivedAtRaw != "" {
		_, res.ReceivedAtISO = NormalizeTimestamp(res.ReceivedAtRaw)
	}
	if res.Content == "" {
		res.Content = firstNonEmpty(res.Code, res.VerifyLink)
	}
	return res
}

func notFound(message string) models.FetchResult {
	res := models.Failed(models.FailureNotFound, message)
	res.ParsePath = models.ParseNone
	return res
}

// findNotFound returns the first line containing a not-found marker.
func findNotFound(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range notFoundMarkers {
			if strings.Contains(lower, marker) {
				return strings.TrimSpace(line), true
			}
		}
	}
	return "", false
}

// codeFromValue keeps a single-token value as is and otherwise prefers the
// first 3-6 digit run outside any timestamp or URL. Prose that only carries a
// link yields no code.
func codeFromValue(value string) string {
	if !strings.ContainsAny(value, " \t") {
		return value
	}
	if c := codeRe.FindString(urlRe.ReplaceAllString(removeTimestamps(value), " ")); c != "" {
		return c
	}
	if urlRe.MatchString(value) {
		return ""
	}
	return value
}

func firstURL(text string) string {
	return trimURL(urlRe.FindString(text))
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:)]}")
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
