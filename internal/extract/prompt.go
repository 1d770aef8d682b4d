package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/sections"
)

// BuildPrompt renders the extraction request for one section bundle: the
// four target categories, the five required fields per event, and the
// expected JSON shape.
func BuildPrompt(bundle *sections.Bundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a space weather expert analyzing data from spaceweather.com for %s.\n\n", bundle.Date)
	b.WriteString(`I will provide you with text snippets from the website, and I need you to identify and categorize space weather events into the following categories:

1. Coronal mass ejection (CME) - Including filament eruptions, their size, and whether they are Earth-facing or not
2. Sunspot activity - Including expansion, creation, extreme maximum or extreme minimum
3. Solar flares - Including C, M, and X class flares
4. Coronal holes - Including coronal holes facing Earth or high-speed solar winds

For each event you identify, please provide the following structured information:
1. Tone of the event: "Normal" or "Significant" (significant means it could have notable effects on Earth or represents an unusual/extreme event)
2. Date of the event (when it was observed)
3. Predicted arrival time at Earth (if mentioned)
4. Detailed description of the event (you can include basic HTML formatting like <p>, <strong>, <em>, <ul>, <li> tags in the detail field)
5. Any image or link associated with this event (if available in the provided data)

Here are the text snippets from the website:

`)

	fmt.Fprintf(&b, "FULL TEXT:\n%s\n\n", bundle.FullText)
	fmt.Fprintf(&b, "CME RELATED:\n%s\n\n", toJSON(bundle.Snippets[models.CategoryCME]))
	fmt.Fprintf(&b, "SUNSPOT RELATED:\n%s\n\n", toJSON(bundle.Snippets[models.CategorySunspot]))
	fmt.Fprintf(&b, "SOLAR FLARES RELATED:\n%s\n\n", toJSON(bundle.Snippets[models.CategoryFlares]))
	fmt.Fprintf(&b, "CORONAL HOLES RELATED:\n%s\n\n", toJSON(bundle.Snippets[models.CategoryCoronalHoles]))
	fmt.Fprintf(&b, "IMAGES:\n%s\n\n", toJSON(bundle.Images))

	fmt.Fprintf(&b, `Please respond with a JSON structure that categorizes all the events you can identify from this data. Use the following format:

`+"```json"+`
{
  "date": "%s",
  "events": {
    "cme": [
      {
        "tone": "Normal/Significant",
        "date": "%s",
        "predicted_arrival": null,
        "detail": "Detailed description",
        "image_url": null
      }
    ],
    "sunspot": [...],
    "flares": [...],
    "coronal_holes": [...]
  }
}
`+"```"+`

Only include events that are explicitly mentioned in the provided text. If no events are found for a category, return an empty array for that category. Ensure your response is valid JSON.

IMPORTANT: If you can't find any specific events in the text, please still return a valid JSON structure with the date and empty arrays for each category. DO NOT return null or an empty response.

IMPORTANT: Your response MUST be valid JSON. Double-check your response before returning it.
`, bundle.Date, bundle.Date)

	return b.String()
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
