package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/text/unicode/norm"
)

var (
	fieldSel = cascadia.MustCompile("[data-field]")
	dlSel    = cascadia.MustCompile("dl")
)

// labelKeys maps the site's visible labels to Structured keys.
var labelKeys = map[string]string{
	"nội dung":       "code",
	"noi dung":       "code",
	"content":        "code",
	"code":           "code",
	"thời gian nhận": "received_at_raw",
	"thoi gian nhan": "received_at_raw",
	"received":       "received_at_raw",
	"received at":    "received_at_raw",
	"link":           "verify_link",
	"link xác minh":  "verify_link",
	"verify link":    "verify_link",
}

// StructuredFromHTML looks for named fields in the result area markup:
// elements carrying a data-field attribute, or dt/dd pairs. It reports false
// when the markup only holds prose.
func StructuredFromHTML(html string) (Structured, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	out := Structured{}

	doc.FindMatcher(fieldSel).Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(s.AttrOr("data-field", "")))
		if key == "" {
			return
		}
		out[key] = fieldValue(s)
	})

	doc.FindMatcher(dlSel).Each(func(_ int, dl *goquery.Selection) {
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			label := strings.ToLower(strings.TrimSpace(norm.NFC.String(dt.Text())))
			label = strings.TrimSuffix(label, ":")
			key, ok := labelKeys[strings.TrimSpace(label)]
			if !ok {
				return
			}
			if _, seen := out[key]; seen {
				return
			}
			if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
				out[key] = fieldValue(dd)
			}
		})
	})

	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out, len(out) > 0
}

// fieldValue prefers a link target over the visible text.
func fieldValue(s *goquery.Selection) string {
	if href, ok := s.Attr("href"); ok && href != "" {
		return strings.TrimSpace(href)
	}
	if href, ok := s.Find("a[href]").First().Attr("href"); ok && href != "" {
		return strings.TrimSpace(href)
	}
	return strings.TrimSpace(norm.NFC.String(s.Text()))
}
