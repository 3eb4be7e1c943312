package generator

import (
	"fmt"
	"slices"
	"strings"
)

// Length bands in characters.
var lengthBands = map[string][2]int{
	"short":  {200, 400},
	"medium": {400, 800},
	"long":   {800, 1500},
}

var toneRegisters = map[string]string{
	"friendly":     "friendly and warm",
	"professional": "professional and precise",
	"provocative":  "provocative, challenging the reader's assumptions",
	"humorous":     "humorous and light",
	"serious":      "serious and weighty",
	"casual":       "casual and conversational",
}

// Tones lists the named tone registers, sorted. Any other tone is passed to
// the model as free text.
func Tones() []string {
	names := make([]string, 0, len(toneRegisters))
	for name := range toneRegisters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const outputRule = "Return only the text of the post: no title, no explanations, no markdown code fences."

const variationInstruction = "Write a second, structurally different version of this post: use a different opening hook and a different order of arguments. Do not reuse sentences from a typical first version."

// BuildPrompt renders the task instruction for p. Clauses appear in a fixed
// order and only when they apply. The system prompt is not included.
func BuildPrompt(p Params) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("Write a Telegram post about: %s", strings.TrimSpace(p.Topic)))

	if tone := strings.TrimSpace(p.Tone); tone != "" {
		if reg, ok := toneRegisters[strings.ToLower(tone)]; ok {
			tone = reg
		}
		lines = append(lines, fmt.Sprintf("Tone: %s.", tone))
	}

	if band, ok := lengthBands[strings.ToLower(strings.TrimSpace(p.Length))]; ok {
		lines = append(lines, fmt.Sprintf("Length: %d to %d characters.", band[0], band[1]))
	}

	if p.IncludeEmoji {
		lines = append(lines, "Use emoji where they fit naturally.")
	}
	if p.IncludeCTA {
		lines = append(lines, "End with a call to action for the reader.")
	}

	if ci := strings.TrimSpace(p.CustomInstructions); ci != "" {
		lines = append(lines, "Additional instructions: "+ci)
	}

	lines = append(lines, outputRule)
	return strings.Join(lines, "\n")
}
