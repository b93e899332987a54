package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredFromHTML_DataFields(t *testing.T) {
	html := `<div id="results-content">
		<span data-field="code"> 583920 </span>
		<span data-field="timestamp">Wed, 05 Mar 2025 14:22:01</span>
		<a data-field="verify_link" href="https://example.test/verify?t=1">Mở link</a>
		<span data-field="empty"></span>
	</div>`

	s, ok := StructuredFromHTML(html)
	require.True(t, ok)
	assert.Equal(t, Structured{
		"code":        "583920",
		"timestamp":   "Wed, 05 Mar 2025 14:22:01",
		"verify_link": "https://example.test/verify?t=1",
	}, s)
}

func TestStructuredFromHTML_DefinitionList(t *testing.T) {
	html := `<div id="results-content"><dl>
		<dt>Nội dung:</dt><dd>771204</dd>
		<dt>Thời gian nhận</dt><dd>05/03/2025 08:00:00</dd>
		<dt>Ghi chú</dt><dd>ignored</dd>
	</dl></div>`

	s, ok := StructuredFromHTML(html)
	require.True(t, ok)
	assert.Equal(t, "771204", s["code"])
	assert.Equal(t, "05/03/2025 08:00:00", s["received_at_raw"])
	assert.Len(t, s, 2)

	res := Parse(ResultArea{Payload: s})
	assert.Equal(t, "771204", res.Code)
	assert.Equal(t, "2025-03-05T08:00:00", res.ReceivedAtISO)
}

func TestStructuredFromHTML_Prose(t *testing.T) {
	_, ok := StructuredFromHTML(`<div id="results-content"><p>Nội dung: 583920</p></div>`)
	assert.False(t, ok)
}
