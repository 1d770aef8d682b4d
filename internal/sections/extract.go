package sections

import (
	"strings"

	"github.com/heliotrack/spaceweather/internal/models"
)

// NoDataSentinel is the full_text value used when no raw source text is
// available for a date. The normalizer checks for it to avoid spending a
// model call on content known to be empty.
const NoDataSentinel = "No data available"

// ContextChars is the window size taken each side of a keyword match.
const ContextChars = 500

// categoryKeywords maps each category to the phrases that anchor its
// candidate snippets.
var categoryKeywords = map[models.Category][]string{
	models.CategoryCME:          {"coronal mass ejection", "CME", "filament eruption"},
	models.CategorySunspot:      {"sunspot", "sunspots", "AR"},
	models.CategoryFlares:       {"solar flare", "X-class", "M-class", "C-class"},
	models.CategoryCoronalHoles: {"coronal hole", "solar wind"},
}

// Image is a source image reference carried through to the model prompt.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Page is the raw material for one date, as produced by a source provider.
type Page struct {
	Date   string
	URL    string
	Text   string
	Images []Image
}

// Bundle is the section extractor's output: category-keyed candidate
// snippets plus the full text and source metadata.
type Bundle struct {
	Snippets map[models.Category][]string
	FullText string
	Date     string
	URL      string
	Images   []Image
}

// Extract splits a page's text into keyword-windowed snippets per
// category. Pure and infallible: a nil page yields a placeholder bundle.
func Extract(page *Page) *Bundle {
	if page == nil {
		return Placeholder("unknown", "unknown")
	}

	snippets := make(map[models.Category][]string, len(categoryKeywords))
	for cat, keywords := range categoryKeywords {
		snippets[cat] = windowsAround(page.Text, keywords)
	}

	return &Bundle{
		Snippets: snippets,
		FullText: page.Text,
		Date:     page.Date,
		URL:      page.URL,
		Images:   page.Images,
	}
}

// Placeholder returns a bundle with empty snippet lists and the no-data
// sentinel text, used when the source is unavailable for a date.
func Placeholder(date, url string) *Bundle {
	snippets := make(map[models.Category][]string, len(categoryKeywords))
	for cat := range categoryKeywords {
		snippets[cat] = []string{}
	}
	return &Bundle{
		Snippets: snippets,
		FullText: NoDataSentinel,
		Date:     date,
		URL:      url,
		Images:   []Image{},
	}
}

// windowsAround returns distinct text windows of ContextChars each side of
// every case-insensitive occurrence of any keyword, in first-occurrence
// order.
func windowsAround(text string, keywords []string) []string {
	lower := strings.ToLower(text)

	var snippets []string
	seen := make(map[string]struct{})

	for _, keyword := range keywords {
		kw := strings.ToLower(keyword)
		for from := 0; ; {
			i := strings.Index(lower[from:], kw)
			if i < 0 {
				break
			}
			i += from

			start := i - ContextChars
			if start < 0 {
				start = 0
			}
			end := i + len(kw) + ContextChars
			if end > len(text) {
				end = len(text)
			}

			snippet := text[start:end]
			if _, dup := seen[snippet]; !dup {
				seen[snippet] = struct{}{}
				snippets = append(snippets, snippet)
			}

			from = i + len(kw)
		}
	}

	if snippets == nil {
		snippets = []string{}
	}
	return snippets
}
