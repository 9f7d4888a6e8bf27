package pattern

import (
	"regexp"
	"sort"
	"strings"
)

// Kind classifies a recognized text span.
type Kind string

const (
	KindAddress Kind = "address"
	KindTicker  Kind = "ticker"
)

var (
	// addressPattern captures only the token after the "CA:" marker.
	addressPattern = regexp.MustCompile(`(?i)CA:\s*([A-Za-z0-9]{10,})`)
	tickerPattern  = regexp.MustCompile(`\$([A-Za-z]+)\b`)
)

// Span is a located occurrence of a recognized pattern within one text.
// Start and End are byte offsets into the scanned string.
type Span struct {
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Symbol returns the ticker letters without the leading "$".
func (s Span) Symbol() string {
	if s.Kind != KindTicker {
		return ""
	}
	return strings.TrimPrefix(s.Text, "$")
}

// Identifier is the value a remote lookup for this span carries.
func (s Span) Identifier() string {
	if s.Kind == KindTicker {
		return s.Symbol()
	}
	return strings.TrimSpace(s.Text)
}

// FindAddress returns the first address token in text. Only one address per
// text is recognized.
func FindAddress(text string) (Span, bool) {
	loc := addressPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Span{}, false
	}
	start, end := loc[2], loc[3]
	return Span{Kind: KindAddress, Text: text[start:end], Start: start, End: end}, true
}

// FindTickers returns every "$SYMBOL" occurrence in left-to-right order.
func FindTickers(text string) []Span {
	locs := tickerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{Kind: KindTicker, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return spans
}

// Find runs both grammars and returns non-overlapping spans ordered by start
// offset. A ticker overlapping the address token is dropped.
func Find(text string) []Span {
	var spans []Span
	addr, hasAddr := FindAddress(text)
	if hasAddr {
		spans = append(spans, addr)
	}
	for _, t := range FindTickers(text) {
		if hasAddr && t.Start < addr.End && addr.Start < t.End {
			continue
		}
		spans = append(spans, t)
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}
