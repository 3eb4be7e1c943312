package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models" {
			t.Errorf("path = %q, want /v1beta/models", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q, want test-key", got)
		}
		if r.URL.Query().Get("key") != "" {
			t.Error("key leaked into the query string")
		}
		w.Write([]byte(`{"models":[
			{"name":"models/gemini-2.0-flash","supportedGenerationMethods":["generateContent","countTokens"]},
			{"name":"models/text-embedding-004","supportedGenerationMethods":["embedContent"]},
			{"name":"models/gemini-1.5-pro","supportedGenerationMethods":["generateContent"]}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.ListModels(context.Background(), "v1beta", "test-key")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"gemini-2.0-flash", "gemini-1.5-pro"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListModels = %v, want %v", got, want)
	}
}

func TestListModels_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListModels(context.Background(), "v1beta", "bad")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Errorf("Code = %d, want 400", se.Code)
	}
}

func TestGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "k" {
			t.Errorf("x-goog-api-key = %q, want k", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				Temperature     float64 `json:"temperature"`
				MaxOutputTokens int     `json:"maxOutputTokens"`
			} `json:"generationConfig"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("contents = %+v", req.Contents)
		}
		if req.GenerationConfig.Temperature != 0.8 || req.GenerationConfig.MaxOutputTokens != 2048 {
			t.Errorf("generationConfig = %+v", req.GenerationConfig)
		}

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	temp := 0.8
	got, err := New(srv.URL).GenerateContent(context.Background(), "v1", "gemini-1.5-flash", "k", "hello",
		GenerationConfig{Temperature: &temp, MaxOutputTokens: 2048})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("GenerateContent = %q, want %q", got, "Hi there")
	}
}

func TestGenerateContent_EmptyPayloads(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"candidates":[]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
		`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
		`{"candidates":[{"finishReason":"SAFETY"}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		_, err := New(srv.URL).GenerateContent(context.Background(), "v1", "m", "k", "p", GenerationConfig{})
		srv.Close()
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("body %s: err = %v, want ErrEmptyResponse", body, err)
		}
	}
}

func TestGenerateContent_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GenerateContent(context.Background(), "v1", "retired-model", "k", "p", GenerationConfig{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404 StatusError", err)
	}
}

func TestGenerateContent_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).GenerateContent(ctx, "v1", "m", "k", "p", GenerationConfig{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestGenerateContent_OmitsEmptyConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["generationConfig"]; ok {
			t.Error("generationConfig sent for a zero config")
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).GenerateContent(context.Background(), "v1", "m", "k", "p", GenerationConfig{}); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
}
