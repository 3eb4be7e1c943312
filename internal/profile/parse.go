package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse decodes a JSON object into a StyleProfile field by field. Absent,
// mistyped or out-of-set fields take their documented default; numbers are
// clamped into range. The only error is data that is not a JSON object.
//
// Parse also accepts the simplified legacy shape in which "tone" is a single
// word and emoji/formality are described qualitatively.
func Parse(data []byte) (StyleProfile, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return StyleProfile{}, fmt.Errorf("decoding style profile: %w", err)
	}
	if m == nil {
		return StyleProfile{}, fmt.Errorf("decoding style profile: not an object")
	}
	return FromMap(m), nil
}

// FromMap builds a normalized StyleProfile from an already-decoded JSON object.
func FromMap(m map[string]any) StyleProfile {
	if _, legacy := m["tone"].(string); legacy {
		return fromLegacy(m)
	}

	p := Default()

	if tone := object(m, "tone"); tone != nil {
		p.Tone.Emotionality = unit(tone, "emotionality", p.Tone.Emotionality)
		p.Tone.Assertiveness = unit(tone, "assertiveness", p.Tone.Assertiveness)
		p.Tone.Irony = unit(tone, "irony", p.Tone.Irony)
	}

	if lang := object(m, "language"); lang != nil {
		p.Language.SentenceLength = enum(lang, "sentenceLength", sentenceLengths, p.Language.SentenceLength)
		p.Language.SlangLevel = unit(lang, "slangLevel", p.Language.SlangLevel)
		p.Language.ProfessionalLexicon = boolean(lang, "professionalLexicon", p.Language.ProfessionalLexicon)
		p.Language.EmojiFrequency = unit(lang, "emojiFrequency", p.Language.EmojiFrequency)
	}

	if st := object(m, "structure"); st != nil {
		p.Structure.HookType = enum(st, "hookType", hookTypes, p.Structure.HookType)
		p.Structure.ParagraphLength = enum(st, "paragraphLength", paragraphLengths, p.Structure.ParagraphLength)
		p.Structure.UseLists = boolean(st, "useLists", p.Structure.UseLists)
		p.Structure.Rhythm = enum(st, "rhythm", rhythms, p.Structure.Rhythm)
	}

	if rh := object(m, "rhetoric"); rh != nil {
		p.Rhetoric.QuestionsPerPost = count(rh, "questionsPerPost", p.Rhetoric.QuestionsPerPost)
		p.Rhetoric.Metaphors = enum(rh, "metaphors", metaphorLevels, p.Rhetoric.Metaphors)
		p.Rhetoric.Storytelling = boolean(rh, "storytelling", p.Rhetoric.Storytelling)
		p.Rhetoric.CTAStyle = enum(rh, "ctaStyle", ctaStyles, p.Rhetoric.CTAStyle)
	}

	if fb := object(m, "forbidden"); fb != nil {
		p.Forbidden.Phrases = stringList(fb, "phrases")
		p.Forbidden.Tones = stringList(fb, "tones")
	}

	if sig := object(m, "signature"); sig != nil {
		p.Signature.TypicalOpenings = stringList(sig, "typicalOpenings")
		p.Signature.TypicalClosings = stringList(sig, "typicalClosings")
	}

	if s, ok := m["summary"].(string); ok {
		p.Summary = strings.TrimSpace(s)
	}
	if _, ok := m["tags"]; ok {
		if tags := stringList(m, "tags"); len(tags) > 0 {
			p.Tags = tags
		}
	}
	if s, ok := m["satisfaction"].(string); ok {
		p.Satisfaction, _ = ParseSatisfaction(s)
	}

	return p
}

// legacyToneHints maps words found in a legacy one-word tone onto the numeric
// tone axes. Checked in order; every matching hint applies.
var legacyToneHints = []struct {
	words []string
	apply func(*Tone)
}{
	{[]string{"iron", "sarcas", "witty"}, func(t *Tone) { t.Irony = 0.8 }},
	{[]string{"emotion", "passion", "enthusias", "energetic"}, func(t *Tone) { t.Emotionality = 0.8 }},
	{[]string{"calm", "neutral", "reserved", "dry"}, func(t *Tone) { t.Emotionality = 0.25 }},
	{[]string{"confident", "assertive", "provoc", "aggress", "bold"}, func(t *Tone) { t.Assertiveness = 0.8 }},
	{[]string{"soft", "gentle", "friendly", "warm"}, func(t *Tone) { t.Assertiveness = 0.35 }},
}

var legacyEmojiUsage = map[string]float64{
	"none":     0,
	"rare":     0.15,
	"moderate": 0.4,
	"frequent": 0.8,
}

func fromLegacy(m map[string]any) StyleProfile {
	p := Default()

	tone := strings.ToLower(m["tone"].(string))
	for _, h := range legacyToneHints {
		for _, w := range h.words {
			if strings.Contains(tone, w) {
				h.apply(&p.Tone)
				break
			}
		}
	}

	p.Language.SentenceLength = enum(m, "sentenceLength", sentenceLengths, p.Language.SentenceLength)

	if s, ok := m["emojiUsage"].(string); ok {
		if f, ok := legacyEmojiUsage[strings.ToLower(strings.TrimSpace(s))]; ok {
			p.Language.EmojiFrequency = f
		}
	}

	if s, ok := m["formality"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "formal":
			p.Language.ProfessionalLexicon = true
			p.Language.SlangLevel = 0.05
		case "informal", "casual":
			p.Language.SlangLevel = 0.6
		}
	}

	if s, ok := m["summary"].(string); ok {
		p.Summary = strings.TrimSpace(s)
	}
	if kw := stringList(m, "keywords"); len(kw) > 0 {
		p.Tags = kw
	}
	return p
}

func object(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// unit reads a number in [0,1]. Numeric strings are accepted; out-of-range
// values are clamped, anything else yields def.
func unit(m map[string]any, key string, def float64) float64 {
	f, ok := number(m[key])
	if !ok {
		return def
	}
	return clampUnit(f, def)
}

func count(m map[string]any, key string, def int) int {
	f, ok := number(m[key])
	if !ok {
		return def
	}
	// Clamp before converting: int() of an out-of-range float is undefined.
	return int(math.Round(max(0, min(MaxQuestionsPerPost, f))))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func boolean(m map[string]any, key string, def bool) bool {
	switch x := m[key].(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

func enum[T ~string](m map[string]any, key string, allowed []T, def T) T {
	s, ok := m[key].(string)
	if !ok {
		return def
	}
	return oneOf(T(s), allowed, def)
}

func stringList(m map[string]any, key string) []string {
	out := []string{}
	arr, ok := m[key].([]any)
	if !ok {
		return out
	}
	for _, v := range arr {
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
