package analyzer

import (
	"fmt"
	"strings"
)

const analysisInstructions = `You are a writing-style analyst. Study the author's text below and describe their voice as a single JSON object. Output ONLY the JSON object: no markdown, no code fences, no commentary.

Schema (all fields required):
{
  "tone": {"emotionality": 0.0-1.0, "assertiveness": 0.0-1.0, "irony": 0.0-1.0},
  "language": {"sentenceLength": "short"|"medium"|"long", "slangLevel": 0.0-1.0, "professionalLexicon": true|false, "emojiFrequency": 0.0-1.0},
  "structure": {"hookType": "question"|"statement"|"provocation"|"mixed", "paragraphLength": "1-2 sentences"|"3-4 sentences"|"5+ sentences", "useLists": true|false, "rhythm": "fast"|"medium"|"slow"},
  "rhetoric": {"questionsPerPost": integer >= 0, "metaphors": "frequent"|"rare"|"none", "storytelling": true|false, "ctaStyle": "soft"|"none"|"direct"},
  "forbidden": {"phrases": [words or phrases this author would never use], "tones": [tones this author avoids]},
  "signature": {"typicalOpenings": [verbatim openings from the text], "typicalClosings": [verbatim closings from the text]},
  "summary": "one or two sentences describing the voice",
  "tags": [recurring themes]
}

Rules:
- Numbers between 0 and 1 describe intensity: 0 means absent, 1 means dominant.
- Quote openings and closings in the author's original language.
- Keep every list short: at most five entries.`

// BuildPrompt returns the analysis prompt for an author's sample text.
func BuildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString(analysisInstructions)
	fmt.Fprintf(&sb, "\n\n[Author text]\n%s", strings.TrimSpace(text))
	return sb.String()
}
