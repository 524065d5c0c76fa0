package expansion

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
)

// maxItems bounds how many phrases of one answer make it into the extension.
const maxItems = 6

var groundingHints = map[category.Category]string{
	category.Websites:  "page layouts, hero sections, navigation, UI components and web typography",
	category.Logos:     "marks, lettering, symbols, monograms and logo construction",
	category.Graphic:   "posters, editorial layouts, shapes, textures and graphic compositions",
	category.Packaging: "boxes, labels, bottles, materials and packaging structures",
	category.Branding:  "brand identity systems, stationery, signage, color systems and mockups",
}

var slotHints = map[category.Category]string{
	category.Illustration: "an illustration",
	category.Photography:  "a photograph",
}

// categoryPrompt builds the instruction for one category of term.
func categoryPrompt(term string, c category.Category, mode extension.Mode) string {
	var b strings.Builder

	switch {
	case mode == extension.Vibe && c.VisualGrounding():
		fmt.Fprintf(&b, "A designer browsing %s wants the mood %q.\n", c, term)
		fmt.Fprintf(&b, "Describe how that mood is rendered in %s.\n", groundingHints[c])
		b.WriteString("Name atmosphere, lighting, color temperature, texture and pacing as short visual phrases.\n")
	case mode == extension.Vibe:
		fmt.Fprintf(&b, "Describe %s that feels %q.\n", slotHints[c], term)
		b.WriteString("Give exactly four phrases, one per slot: mood, palette, light, composition.\n")
	case c.VisualGrounding():
		fmt.Fprintf(&b, "A designer searches %s for %q.\n", c, term)
		fmt.Fprintf(&b, "List the concrete visual elements such a design shows: %s.\n", groundingHints[c])
		b.WriteString("Prefer what is literally visible over abstract qualities.\n")
	default:
		fmt.Fprintf(&b, "Describe %s of %q.\n", slotHints[c], term)
		b.WriteString("Give exactly four phrases, one per slot: style, palette, typography or texture, composition.\n")
	}

	fmt.Fprintf(&b, "Respond with a JSON array of at most %d short strings and nothing else.", maxItems)
	return b.String()
}

// expandPrompt asks for one query-wide rendering of an abstract term.
func expandPrompt(term string) string {
	return fmt.Sprintf(
		"The search term %q is abstract. Translate it into what a matching design image looks like: "+
			"subjects, colors, shapes, materials and layout.\n"+
			"Respond with a JSON array of at most %d short strings and nothing else.",
		term, maxItems)
}

// classifyPrompt asks whether term names a visible thing or a feeling.
func classifyPrompt(term string) string {
	return fmt.Sprintf(
		"Classify the design search term %q.\n"+
			"\"concrete\" means it names something visible (objects, styles, techniques, colors).\n"+
			"\"abstract\" means it names a mood, value or feeling.\n"+
			"Respond with a JSON array holding exactly one string: \"concrete\" or \"abstract\".",
		term)
}

// joinItems renders parsed phrases as one extension text.
func joinItems(items []string) string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return strings.Join(items, ", ")
}
