package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/heliotrack/spaceweather/internal/models"
)

// ParseStatus classifies a repair outcome.
type ParseStatus int

const (
	// Parsed means the whole reply decoded, directly or after repair.
	Parsed ParseStatus = iota
	// PartiallyParsed means only per-category salvage produced events.
	PartiallyParsed
	// Failed means no structured data could be recovered.
	Failed
)

func (s ParseStatus) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case PartiallyParsed:
		return "partial"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ParseResult is the tagged outcome of repairing one model reply.
type ParseResult struct {
	Status ParseStatus
	Date   string
	Events models.EventSet
	Reason string
}

// reply mirrors the JSON shape the model is asked to produce.
type reply struct {
	Date   string          `json:"date"`
	Events models.EventSet `json:"events"`
}

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	controlCharPattern   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyPattern   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	upperBoolPattern     = regexp.MustCompile(`\b(True|TRUE|False|FALSE|Null|NULL|None)\b`)
)

// Repair turns a raw model reply into structured events, tolerating the
// usual failure modes: fenced code blocks, prose around the object,
// trailing commas, unquoted keys, uppercase literals, single quotes, and
// truncated output missing closing braces. It is pure; the network call
// happens elsewhere.
func Repair(raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return ParseResult{Status: Failed, Reason: "empty reply"}
	}

	text := stripFence(raw)
	text = extractObject(text)

	// A well-formed reply must come through byte-identical, so the
	// textual repairs only run once a parse has failed: the sanitize
	// regexes cannot tell keys from prose inside string values.
	if r, ok := strictParse(text); ok {
		return r
	}

	cleaned := sanitize(text)
	if r, ok := strictParse(cleaned); ok {
		return r
	}

	// Truncated replies usually just lack closing braces.
	for _, s := range []string{text, cleaned} {
		if opens, closes := strings.Count(s, "{"), strings.Count(s, "}"); opens > closes {
			balanced := s + strings.Repeat("}", opens-closes)
			if r, ok := strictParse(balanced); ok {
				return r
			}
		}
	}

	if r, ok := salvage(text); ok {
		return r
	}

	return ParseResult{Status: Failed, Reason: fmt.Sprintf("no parseable JSON in %d-byte reply", len(raw))}
}

// stripFence unwraps a fenced code block, json-tagged or bare.
func stripFence(s string) string {
	if m := fencedBlockPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// extractObject narrows prose-wrapped replies to the outermost brace span.
func extractObject(s string) string {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		return strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// sanitize applies the textual repairs that precede any parse attempt.
func sanitize(s string) string {
	s = controlCharPattern.ReplaceAllString(s, "")
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	s = unquotedKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
	s = upperBoolPattern.ReplaceAllStringFunc(s, func(m string) string {
		switch strings.ToLower(m) {
		case "true":
			return "true"
		case "false":
			return "false"
		default:
			return "null"
		}
	})
	// Single-quoted output only converts when no double quotes exist,
	// otherwise apostrophes inside valid strings would be mangled.
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

func strictParse(s string) (ParseResult, bool) {
	if !gjson.Valid(s) {
		return ParseResult{}, false
	}
	var r reply
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return ParseResult{}, false
	}
	r.Events.Normalize()
	return ParseResult{Status: Parsed, Date: r.Date, Events: r.Events}, true
}

// salvage assembles a best-effort partial result by locating each
// category's array span and decoding its objects one at a time,
// discarding any that do not parse. Each object is tried as-is before
// being sanitized, so intact objects are not rewritten.
func salvage(s string) (ParseResult, bool) {
	var events models.EventSet
	events.Normalize()

	recovered := 0
	for _, cat := range models.Categories() {
		span := categorySpan(s, string(cat))
		if span == "" {
			continue
		}
		for _, obj := range objectSpans(span) {
			e, ok := parseEvent(obj)
			if !ok {
				e, ok = parseEvent(sanitize(obj))
			}
			if !ok {
				continue
			}
			if e.Detail == "" && e.Tone == "" {
				continue
			}
			events.Append(cat, e)
			recovered++
		}
	}

	if recovered == 0 {
		return ParseResult{}, false
	}
	return ParseResult{
		Status: PartiallyParsed,
		Date:   gjson.Get(s, "date").String(),
		Events: events,
		Reason: fmt.Sprintf("salvaged %d events from malformed reply", recovered),
	}, true
}

func parseEvent(s string) (models.Event, bool) {
	if !gjson.Valid(s) {
		return models.Event{}, false
	}
	var e models.Event
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return models.Event{}, false
	}
	return e, true
}

// categorySpan returns the bracketed array text following `"name":`, or
// the remainder of the input when the array is unterminated.
func categorySpan(s, name string) string {
	key := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*\[`)
	loc := key.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	depth := 0
	for i := loc[1] - 1; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[loc[1]-1 : i+1]
			}
		}
	}
	return s[loc[1]-1:]
}

// objectSpans returns each top-level {...} span inside an array body,
// tracking brace depth but not string context; the per-object parse
// discards anything this over- or under-cuts.
func objectSpans(s string) []string {
	var spans []string
	depth, start := 0, -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
