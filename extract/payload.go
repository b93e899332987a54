// Package extract turns the content of the site's result area into a
// models.FetchResult.
//
// Every function here is pure: the same input always yields the same result,
// and no input makes a function panic or return an error.
package extract

// Payload is what the driver read from the result area: either RawText or
// Structured. The interface is sealed.
type Payload interface {
	isPayload()
}

// RawText is the rendered text of the result area.
type RawText string

// Structured is a key/value view of the result area, used when the markup
// exposes named fields.
type Structured map[string]string

func (RawText) isPayload()    {}
func (Structured) isPayload() {}

// ResultArea is everything read from the page after a query was submitted.
type ResultArea struct {
	// Warning is the visible text of the "no data" banner, empty when absent.
	Warning string
	Payload Payload
}

// first returns the first non-empty value among keys.
func (s Structured) first(keys ...string) string {
	for _, k := range keys {
		if v, ok := s[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
