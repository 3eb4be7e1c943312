// Package profile defines the StyleProfile (an author's style fingerprint),
// its documented defaults, and cached per-user access to stored profiles.
package profile

import (
	"math"
	"strings"
)

type SentenceLength string

const (
	SentenceShort  SentenceLength = "short"
	SentenceMedium SentenceLength = "medium"
	SentenceLong   SentenceLength = "long"
)

type HookType string

const (
	HookQuestion    HookType = "question"
	HookStatement   HookType = "statement"
	HookProvocation HookType = "provocation"
	HookMixed       HookType = "mixed"
)

type ParagraphLength string

const (
	ParagraphShort  ParagraphLength = "1-2 sentences"
	ParagraphMedium ParagraphLength = "3-4 sentences"
	ParagraphLong   ParagraphLength = "5+ sentences"
)

type Rhythm string

const (
	RhythmFast   Rhythm = "fast"
	RhythmMedium Rhythm = "medium"
	RhythmSlow   Rhythm = "slow"
)

type Metaphors string

const (
	MetaphorsFrequent Metaphors = "frequent"
	MetaphorsRare     Metaphors = "rare"
	MetaphorsNone     Metaphors = "none"
)

type CTAStyle string

const (
	CTASoft   CTAStyle = "soft"
	CTANone   CTAStyle = "none"
	CTADirect CTAStyle = "direct"
)

// MaxQuestionsPerPost caps Rhetoric.QuestionsPerPost.
const MaxQuestionsPerPost = 50

// Satisfaction is the user's feedback on the last generation that used the
// profile. The empty value means no feedback was recorded.
type Satisfaction string

const (
	SatisfactionUnset   Satisfaction = ""
	SatisfactionLike    Satisfaction = "like"
	SatisfactionDislike Satisfaction = "dislike"
	SatisfactionNone    Satisfaction = "none"
)

var (
	sentenceLengths  = []SentenceLength{SentenceShort, SentenceMedium, SentenceLong}
	hookTypes        = []HookType{HookQuestion, HookStatement, HookProvocation, HookMixed}
	paragraphLengths = []ParagraphLength{ParagraphShort, ParagraphMedium, ParagraphLong}
	rhythms          = []Rhythm{RhythmFast, RhythmMedium, RhythmSlow}
	metaphorLevels   = []Metaphors{MetaphorsFrequent, MetaphorsRare, MetaphorsNone}
	ctaStyles        = []CTAStyle{CTASoft, CTANone, CTADirect}
	satisfactions    = []Satisfaction{SatisfactionLike, SatisfactionDislike, SatisfactionNone}
)

type Tone struct {
	Emotionality  float64 `json:"emotionality"`
	Assertiveness float64 `json:"assertiveness"`
	Irony         float64 `json:"irony"`
}

type Language struct {
	SentenceLength      SentenceLength `json:"sentenceLength"`
	SlangLevel          float64        `json:"slangLevel"`
	ProfessionalLexicon bool           `json:"professionalLexicon"`
	EmojiFrequency      float64        `json:"emojiFrequency"`
}

type Structure struct {
	HookType        HookType        `json:"hookType"`
	ParagraphLength ParagraphLength `json:"paragraphLength"`
	UseLists        bool            `json:"useLists"`
	Rhythm          Rhythm          `json:"rhythm"`
}

type Rhetoric struct {
	QuestionsPerPost int       `json:"questionsPerPost"`
	Metaphors        Metaphors `json:"metaphors"`
	Storytelling     bool      `json:"storytelling"`
	CTAStyle         CTAStyle  `json:"ctaStyle"`
}

type Forbidden struct {
	Phrases []string `json:"phrases"`
	Tones   []string `json:"tones"`
}

type Signature struct {
	TypicalOpenings []string `json:"typicalOpenings"`
	TypicalClosings []string `json:"typicalClosings"`
}

// StyleProfile is the structured representation of an author's voice.
// Profiles are replaced wholesale on re-analysis, never merged.
type StyleProfile struct {
	Tone         Tone         `json:"tone"`
	Language     Language     `json:"language"`
	Structure    Structure    `json:"structure"`
	Rhetoric     Rhetoric     `json:"rhetoric"`
	Forbidden    Forbidden    `json:"forbidden"`
	Signature    Signature    `json:"signature"`
	Summary      string       `json:"summary,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Satisfaction Satisfaction `json:"satisfaction,omitempty"`
}

// InconclusiveSummary marks a profile produced when analysis could not be parsed.
const InconclusiveSummary = "Style analysis was inconclusive; neutral defaults applied."

// InconclusiveTag is attached to the tags of an inconclusive profile.
const InconclusiveTag = "inconclusive"

// Default returns the documented neutral profile. Every field that is absent
// or invalid at read time takes its value from here:
//
//	tone:      emotionality 0.5, assertiveness 0.5, irony 0.2
//	language:  sentenceLength medium, slangLevel 0.2, professionalLexicon false, emojiFrequency 0.3
//	structure: hookType mixed, paragraphLength "3-4 sentences", useLists false, rhythm medium
//	rhetoric:  questionsPerPost 1, metaphors rare, storytelling false, ctaStyle soft
//	lists:     empty
func Default() StyleProfile {
	return StyleProfile{
		Tone: Tone{
			Emotionality:  0.5,
			Assertiveness: 0.5,
			Irony:         0.2,
		},
		Language: Language{
			SentenceLength:      SentenceMedium,
			SlangLevel:          0.2,
			ProfessionalLexicon: false,
			EmojiFrequency:      0.3,
		},
		Structure: Structure{
			HookType:        HookMixed,
			ParagraphLength: ParagraphMedium,
			UseLists:        false,
			Rhythm:          RhythmMedium,
		},
		Rhetoric: Rhetoric{
			QuestionsPerPost: 1,
			Metaphors:        MetaphorsRare,
			Storytelling:     false,
			CTAStyle:         CTASoft,
		},
		Forbidden: Forbidden{Phrases: []string{}, Tones: []string{}},
		Signature: Signature{TypicalOpenings: []string{}, TypicalClosings: []string{}},
	}
}

// Inconclusive returns the default profile marked as the result of a failed analysis.
func Inconclusive() StyleProfile {
	p := Default()
	p.Summary = InconclusiveSummary
	p.Tags = []string{InconclusiveTag}
	return p
}

// IsInconclusive reports whether p carries the inconclusive marker.
func (p StyleProfile) IsInconclusive() bool {
	for _, t := range p.Tags {
		if t == InconclusiveTag {
			return true
		}
	}
	return false
}

// Normalize returns a copy of p with every numeric field clamped to its range,
// every enum checked against its allowed set (invalid values fall back to the
// default), and list fields trimmed of blank entries.
func (p StyleProfile) Normalize() StyleProfile {
	d := Default()
	out := p.Clone()

	out.Tone.Emotionality = clampUnit(p.Tone.Emotionality, d.Tone.Emotionality)
	out.Tone.Assertiveness = clampUnit(p.Tone.Assertiveness, d.Tone.Assertiveness)
	out.Tone.Irony = clampUnit(p.Tone.Irony, d.Tone.Irony)

	out.Language.SentenceLength = oneOf(p.Language.SentenceLength, sentenceLengths, d.Language.SentenceLength)
	out.Language.SlangLevel = clampUnit(p.Language.SlangLevel, d.Language.SlangLevel)
	out.Language.EmojiFrequency = clampUnit(p.Language.EmojiFrequency, d.Language.EmojiFrequency)

	out.Structure.HookType = oneOf(p.Structure.HookType, hookTypes, d.Structure.HookType)
	out.Structure.ParagraphLength = oneOf(p.Structure.ParagraphLength, paragraphLengths, d.Structure.ParagraphLength)
	out.Structure.Rhythm = oneOf(p.Structure.Rhythm, rhythms, d.Structure.Rhythm)

	out.Rhetoric.QuestionsPerPost = max(0, min(MaxQuestionsPerPost, out.Rhetoric.QuestionsPerPost))
	out.Rhetoric.Metaphors = oneOf(p.Rhetoric.Metaphors, metaphorLevels, d.Rhetoric.Metaphors)
	out.Rhetoric.CTAStyle = oneOf(p.Rhetoric.CTAStyle, ctaStyles, d.Rhetoric.CTAStyle)

	out.Forbidden.Phrases = cleanList(p.Forbidden.Phrases)
	out.Forbidden.Tones = cleanList(p.Forbidden.Tones)
	out.Signature.TypicalOpenings = cleanList(p.Signature.TypicalOpenings)
	out.Signature.TypicalClosings = cleanList(p.Signature.TypicalClosings)

	out.Summary = strings.TrimSpace(p.Summary)
	if len(p.Tags) > 0 {
		out.Tags = cleanList(p.Tags)
	}
	if p.Satisfaction != SatisfactionUnset {
		out.Satisfaction = oneOf(p.Satisfaction, satisfactions, SatisfactionUnset)
	}
	return out
}

// Clone returns a deep copy of p.
func (p StyleProfile) Clone() StyleProfile {
	cp := p
	cp.Forbidden.Phrases = copyStrings(p.Forbidden.Phrases)
	cp.Forbidden.Tones = copyStrings(p.Forbidden.Tones)
	cp.Signature.TypicalOpenings = copyStrings(p.Signature.TypicalOpenings)
	cp.Signature.TypicalClosings = copyStrings(p.Signature.TypicalClosings)
	cp.Tags = copyStrings(p.Tags)
	return cp
}

// ParseSatisfaction validates a feedback value. ok is false for unknown values.
func ParseSatisfaction(s string) (Satisfaction, bool) {
	v := Satisfaction(strings.ToLower(strings.TrimSpace(s)))
	for _, allowed := range satisfactions {
		if v == allowed {
			return v, true
		}
	}
	return SatisfactionUnset, false
}

func clampUnit(v, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(0, math.Min(1, v))
}

func oneOf[T ~string](v T, allowed []T, def T) T {
	norm := T(strings.ToLower(strings.TrimSpace(string(v))))
	for _, a := range allowed {
		if norm == a {
			return a
		}
	}
	return def
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
