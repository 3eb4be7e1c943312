package generator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/composer"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/profile"
)

type mockCreds struct {
	cred credentials.Credential
	err  error
}

func (m mockCreds) GetKey(ctx context.Context, userID, provider string) (credentials.Credential, error) {
	return m.cred, m.err
}

// mockInvoker returns responses in order; an error entry fails that call.
type mockInvoker struct {
	responses []string
	errs      []error
	prompts   []string
}

func (m *mockInvoker) Invoke(ctx context.Context, cred credentials.Credential, prompt string, opts ...cascade.Option) (cascade.Result, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return cascade.Result{}, m.errs[i]
	}
	text := ""
	if i < len(m.responses) {
		text = m.responses[i]
	}
	return cascade.Result{Text: text, Attempt: cascade.Attempt{Version: "v1beta", Model: "gemini-1.5-flash"}}, nil
}

var okCreds = mockCreds{cred: credentials.Credential{Provider: "gemini", Key: "k"}}

func newTestGenerator(creds credentials.Provider, inv Invoker) *Generator {
	g := New(creds, inv)
	g.jitter = func() float64 { return 0.5 }
	g.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerate_Basic(t *testing.T) {
	inv := &mockInvoker{responses: []string{"  Post body.  "}}
	g := newTestGenerator(okCreds, inv)

	res, err := g.Generate(context.Background(), "u1", Params{Topic: "remote work", Tone: "friendly", Length: "short"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "Post body." {
		t.Errorf("Content = %q", res.Content)
	}
	if res.Model != "gemini-1.5-flash" || res.APIVersion != "v1beta" {
		t.Errorf("served by %s/%s", res.APIVersion, res.Model)
	}
	if math.Abs(res.Confidence-0.9) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}
	if res.Alternatives == nil || len(res.Alternatives) != 0 {
		t.Errorf("Alternatives = %#v, want empty non-nil", res.Alternatives)
	}
	if len(inv.prompts) != 1 {
		t.Errorf("invocations = %d, want 1", len(inv.prompts))
	}
}

func TestGenerate_NoFingerprintNoSystemPrompt(t *testing.T) {
	inv := &mockInvoker{responses: []string{"x"}}
	g := newTestGenerator(okCreds, inv)

	if _, err := g.Generate(context.Background(), "u1", Params{Topic: "AI"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	prompt := inv.prompts[0]
	if strings.Contains(prompt, composer.Separator) {
		t.Error("prompt has a system prefix without a fingerprint")
	}
	if strings.Contains(prompt, "call to action") {
		t.Error("CTA clause rendered with IncludeCTA=false")
	}
	if strings.Contains(prompt, "emoji") {
		t.Error("emoji clause rendered with IncludeEmoji=false")
	}
}

func TestGenerate_WithFingerprint(t *testing.T) {
	inv := &mockInvoker{responses: []string{"x"}}
	g := newTestGenerator(okCreds, inv)

	fp := profile.Default()
	fp.Forbidden.Phrases = []string{"синергия"}
	if _, err := g.Generate(context.Background(), "u1", Params{Topic: "AI", Fingerprint: &fp}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := composer.Compile(fp) + composer.Separator
	if !strings.HasPrefix(inv.prompts[0], want) {
		t.Errorf("prompt does not start with the compiled profile:\n%s", inv.prompts[0])
	}
}

func TestGenerate_Alternative(t *testing.T) {
	inv := &mockInvoker{responses: []string{"primary", "second take"}}
	g := newTestGenerator(okCreds, inv)

	res, err := g.Generate(context.Background(), "u1", Params{Topic: "AI", Alternative: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0] != "second take" {
		t.Errorf("Alternatives = %v", res.Alternatives)
	}
	if !strings.Contains(inv.prompts[1], variationInstruction) {
		t.Error("alternative prompt lacks the variation instruction")
	}
}

func TestGenerate_AlternativeFailureSwallowed(t *testing.T) {
	inv := &mockInvoker{
		responses: []string{"primary"},
		errs:      []error{nil, &cascade.ExhaustedError{Last: errors.New("503")}},
	}
	g := newTestGenerator(okCreds, inv)

	res, err := g.Generate(context.Background(), "u1", Params{Topic: "AI", Alternative: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "primary" || len(res.Alternatives) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		creds  credentials.Provider
		inv    *mockInvoker
		params Params
		want   error
	}{
		{"empty topic", okCreds, &mockInvoker{}, Params{Topic: "  "}, ErrEmptyTopic},
		{"no credential", mockCreds{err: credentials.ErrNotFound}, &mockInvoker{}, Params{Topic: "x"}, ErrNoCredential},
		{"exhausted", okCreds, &mockInvoker{errs: []error{&cascade.ExhaustedError{Last: errors.New("404")}}}, Params{Topic: "x"}, cascade.ErrExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestGenerator(tt.creds, tt.inv).Generate(context.Background(), "u1", tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// Credential lookups that fail for other reasons are not reported as missing keys.
	_, err := newTestGenerator(mockCreds{err: errors.New("db closed")}, &mockInvoker{}).
		Generate(context.Background(), "u1", Params{Topic: "x"})
	if err == nil || errors.Is(err, ErrNoCredential) {
		t.Errorf("err = %v, want a non-ErrNoCredential error", err)
	}
}

func TestConfidence_Bounds(t *testing.T) {
	g := newTestGenerator(okCreds, &mockInvoker{})
	for _, j := range []float64{0, 0.999, 5, -20} {
		g.jitter = func() float64 { return j }
		c := g.confidence()
		if c < 0 || c > 1 {
			t.Errorf("jitter %v: confidence %v out of [0,1]", j, c)
		}
	}
	g.jitter = func() float64 { return 0 }
	if c := g.confidence(); c != 0.85 {
		t.Errorf("confidence = %v, want 0.85", c)
	}
}

func TestBuildPrompt_Order(t *testing.T) {
	got := BuildPrompt(Params{
		Topic:              "pricing",
		Tone:               "provocative",
		Length:             "long",
		IncludeEmoji:       true,
		IncludeCTA:         true,
		CustomInstructions: "mention the beta",
	})
	order := []string{"about: pricing", "Tone: provocative", "800 to 1500", "emoji", "call to action", "mention the beta", outputRule}
	last := -1
	for _, s := range order {
		i := strings.Index(got, s)
		if i <= last {
			t.Fatalf("%q missing or out of order in:\n%s", s, got)
		}
		last = i
	}
}

func TestBuildPrompt_UnknownTonePassedThrough(t *testing.T) {
	got := BuildPrompt(Params{Topic: "x", Tone: "melancholic"})
	if !strings.Contains(got, "Tone: melancholic.") {
		t.Errorf("unknown tone not passed through:\n%s", got)
	}
}

func TestBuildPrompt_LengthBands(t *testing.T) {
	for length, want := range map[string]string{"short": "200 to 400", "medium": "400 to 800", "long": "800 to 1500"} {
		if got := BuildPrompt(Params{Topic: "x", Length: length}); !strings.Contains(got, want) {
			t.Errorf("length %q: prompt lacks %q", length, want)
		}
	}
	if got := BuildPrompt(Params{Topic: "x"}); strings.Contains(got, "Length:") {
		t.Error("length clause rendered without a length")
	}
}

func TestGenerate_ProviderCaseInsensitive(t *testing.T) {
	creds := credentials.NewStaticProvider(credentials.ProviderGemini, "k")
	g := newTestGenerator(creds, &mockInvoker{responses: []string{"Post."}})

	if _, err := g.Generate(context.Background(), "u1", Params{Topic: "AI", Provider: " Gemini "}); err != nil {
		t.Fatalf("Generate with provider %q: %v", " Gemini ", err)
	}
}

func TestTones(t *testing.T) {
	tones := Tones()
	if len(tones) != len(toneRegisters) {
		t.Fatalf("Tones() = %v, want every register", tones)
	}
	for i, name := range tones {
		if i > 0 && tones[i-1] >= name {
			t.Errorf("Tones() not sorted: %v", tones)
		}
		if _, ok := toneRegisters[name]; !ok {
			t.Errorf("Tones() includes %q, which has no register", name)
		}
	}
}
