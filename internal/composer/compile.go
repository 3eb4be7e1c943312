// Package composer compiles a StyleProfile into the system prompt that steers
// generation. Compilation is pure: the same profile always yields the same
// text and nothing outside the profile is consulted.
package composer

import (
	"fmt"
	"strings"

	"github.com/hpnssflw/voicekeeper/internal/profile"
)

// Thresholds splitting a [0,1] intensity into low, medium and high.
const (
	HighThreshold = 0.66
	LowThreshold  = 0.33
)

// Separator joins a compiled system prompt and a task instruction.
const Separator = "\n\n---\n\n"

const header = "You are ghost-writing posts for a Telegram channel. Write exactly in the author's voice described below; the reader must not be able to tell the post was not written by the author."

// Level names the band v falls in: "high" at or above HighThreshold, "low"
// at or below LowThreshold, "medium" otherwise.
func Level(v float64) string {
	switch {
	case v >= HighThreshold:
		return "high"
	case v <= LowThreshold:
		return "low"
	default:
		return "medium"
	}
}

var (
	emotionalityText = map[string]string{
		"high":   "high: expressive, emotionally charged wording",
		"medium": "medium: emotion where it matters, otherwise even",
		"low":    "low: calm and matter-of-fact",
	}
	assertivenessText = map[string]string{
		"high":   "high: categorical statements, no hedging",
		"medium": "medium: confident but open to other views",
		"low":    "low: tentative, suggests rather than asserts",
	}
	ironyText = map[string]string{
		"high":   "high: irony and sarcasm are a signature device",
		"medium": "medium: occasional dry humour",
		"low":    "low: sincere and literal",
	}
	slangText = map[string]string{
		"high":   "heavy use of slang and colloquialisms",
		"medium": "some slang, mixed with neutral language",
		"low":    "almost no slang",
	}
	emojiText = map[string]string{
		"high":   "emoji are frequent, several per post",
		"medium": "emoji occasionally, one or two per post",
		"low":    "emoji rarely or never",
	}
	sentenceText = map[profile.SentenceLength]string{
		profile.SentenceShort:  "short and punchy",
		profile.SentenceMedium: "medium length",
		profile.SentenceLong:   "long, with subordinate clauses",
	}
	hookText = map[profile.HookType]string{
		profile.HookQuestion:    "open with a question",
		profile.HookStatement:   "open with a strong statement",
		profile.HookProvocation: "open with a provocation that challenges the reader",
		profile.HookMixed:       "vary the opening between questions and statements",
	}
	rhythmText = map[profile.Rhythm]string{
		profile.RhythmFast:   "fast, short beats",
		profile.RhythmMedium: "steady",
		profile.RhythmSlow:   "slow and reflective",
	}
	metaphorText = map[profile.Metaphors]string{
		profile.MetaphorsFrequent: "use metaphors and imagery often",
		profile.MetaphorsRare:     "use metaphors sparingly",
		profile.MetaphorsNone:     "avoid metaphors; be literal",
	}
	ctaText = map[profile.CTAStyle]string{
		profile.CTASoft:   "soft: invite the reader to reflect or share",
		profile.CTANone:   "none: do not end with a call to action",
		profile.CTADirect: "direct: end with a clear call to action",
	}
)

// Compile renders p as a system prompt. Sections appear in a fixed order;
// optional sections are omitted when empty. Satisfaction does not affect the
// output.
func Compile(p profile.StyleProfile) string {
	p = p.Normalize()

	var sb strings.Builder
	sb.WriteString(header)

	sb.WriteString("\n\nTone:\n")
	fmt.Fprintf(&sb, "- Emotionality %s\n", emotionalityText[Level(p.Tone.Emotionality)])
	fmt.Fprintf(&sb, "- Assertiveness %s\n", assertivenessText[Level(p.Tone.Assertiveness)])
	fmt.Fprintf(&sb, "- Irony %s", ironyText[Level(p.Tone.Irony)])

	sb.WriteString("\n\nLanguage:\n")
	fmt.Fprintf(&sb, "- Sentences: %s\n", sentenceText[p.Language.SentenceLength])
	fmt.Fprintf(&sb, "- Slang: %s\n", slangText[Level(p.Language.SlangLevel)])
	if p.Language.ProfessionalLexicon {
		sb.WriteString("- Use professional, domain-specific vocabulary\n")
	} else {
		sb.WriteString("- Prefer everyday vocabulary over jargon\n")
	}
	fmt.Fprintf(&sb, "- Emoji: %s", emojiText[Level(p.Language.EmojiFrequency)])

	sb.WriteString("\n\nStructure:\n")
	fmt.Fprintf(&sb, "- Hook: %s\n", hookText[p.Structure.HookType])
	fmt.Fprintf(&sb, "- Paragraphs: %s each\n", p.Structure.ParagraphLength)
	if p.Structure.UseLists {
		sb.WriteString("- Use bulleted or numbered lists where they help\n")
	} else {
		sb.WriteString("- Write in prose; avoid lists\n")
	}
	fmt.Fprintf(&sb, "- Rhythm: %s", rhythmText[p.Structure.Rhythm])

	sb.WriteString("\n\nRhetoric:\n")
	fmt.Fprintf(&sb, "- Questions to the reader: about %d per post\n", p.Rhetoric.QuestionsPerPost)
	fmt.Fprintf(&sb, "- Metaphors: %s\n", metaphorText[p.Rhetoric.Metaphors])
	if p.Rhetoric.Storytelling {
		sb.WriteString("- Build the post around a personal story or concrete example\n")
	} else {
		sb.WriteString("- Get to the point; no extended storytelling\n")
	}
	fmt.Fprintf(&sb, "- Call to action: %s", ctaText[p.Rhetoric.CTAStyle])

	if !p.IsInconclusive() {
		if p.Summary != "" {
			fmt.Fprintf(&sb, "\n\nAuthor summary: %s", p.Summary)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(&sb, "\n\nRecurring themes: %s", strings.Join(p.Tags, ", "))
		}
	}

	if len(p.Forbidden.Phrases) > 0 || len(p.Forbidden.Tones) > 0 {
		sb.WriteString("\n\nForbidden:")
		if len(p.Forbidden.Phrases) > 0 {
			fmt.Fprintf(&sb, "\n- Never use these phrases: %s", quoteList(p.Forbidden.Phrases))
		}
		if len(p.Forbidden.Tones) > 0 {
			fmt.Fprintf(&sb, "\n- Never adopt these tones: %s", strings.Join(p.Forbidden.Tones, ", "))
		}
	}

	if len(p.Signature.TypicalOpenings) > 0 || len(p.Signature.TypicalClosings) > 0 {
		sb.WriteString("\n\nSignature examples (illustrative, not mandatory):")
		if len(p.Signature.TypicalOpenings) > 0 {
			fmt.Fprintf(&sb, "\n- Typical openings: %s", quoteList(p.Signature.TypicalOpenings))
		}
		if len(p.Signature.TypicalClosings) > 0 {
			fmt.Fprintf(&sb, "\n- Typical closings: %s", quoteList(p.Signature.TypicalClosings))
		}
	}

	return sb.String()
}

// Join merges a system prompt and an instruction. An empty system prompt
// yields the instruction unchanged.
func Join(system, instruction string) string {
	if system == "" {
		return instruction
	}
	return system + Separator + instruction
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
