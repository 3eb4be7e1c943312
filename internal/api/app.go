package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpnssflw/voicekeeper/internal/analyzer"
	"github.com/hpnssflw/voicekeeper/internal/composer"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/generator"
	"github.com/hpnssflw/voicekeeper/internal/profile"
	"github.com/hpnssflw/voicekeeper/internal/storage"
	"github.com/hpnssflw/voicekeeper/internal/worker"
)

// StyleAnalyzer is implemented by analyzer.Analyzer.
type StyleAnalyzer interface {
	Analyze(ctx context.Context, cred credentials.Credential, text string) (profile.StyleProfile, error)
}

// PostGenerator is implemented by generator.Generator.
type PostGenerator interface {
	Generate(ctx context.Context, userID string, p generator.Params) (generator.Result, error)
}

// KeyValidator is implemented by keycheck.Validator.
type KeyValidator interface {
	Validate(ctx context.Context, provider, key string) bool
}

type AppDeps struct {
	Store     *storage.Store
	Profiles  *profile.Manager
	Creds     credentials.Provider
	Analyzer  StyleAnalyzer
	Generator PostGenerator
	Validator KeyValidator
	Token     string
}

// NewAppHandler returns the JSON API. Everything except /health requires the
// bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	h := &appHandler{deps: deps, logger: slog.Default().With("component", "api")}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/compile", h.compile)
		r.Post("/keys/validate", h.validateKey)
		r.Get("/jobs/{id}", h.getJob)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/analyze", h.analyze)
			r.Get("/profile", h.getProfile)
			r.Put("/profile", h.putProfile)
			r.Post("/profile/satisfaction", h.setSatisfaction)
			r.Post("/generate", h.generate)
			r.Get("/generations", h.listGenerations)
			r.Put("/keys/{provider}", h.putKey)
			r.Delete("/keys/{provider}", h.deleteKey)
		})
	})

	return r
}

type appHandler struct {
	deps   AppDeps
	logger *slog.Logger
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type analyzeRequest struct {
	Text  string `json:"text"`
	Async bool   `json:"async"`
}

func (h *appHandler) analyze(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := analyzer.CheckSample(req.Text); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	if req.Async {
		jobID, err := worker.Enqueue(h.deps.Store, userID, req.Text)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue analysis: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "queued"})
		return
	}

	cred, err := h.deps.Creds.GetKey(r.Context(), userID, credentials.ProviderGemini)
	if err != nil {
		writeServiceError(w, h.logger, "style analysis", err)
		return
	}
	p, err := h.deps.Analyzer.Analyze(r.Context(), cred, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, "style analysis", err)
		return
	}
	if err := h.deps.Profiles.Replace(userID, p); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, p.Normalize())
}

func (h *appHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Store.GetJob(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         job.ID,
		"type":       job.Type,
		"status":     job.Status,
		"attempts":   job.Attempts,
		"last_error": job.LastError,
		"updated_at": job.UpdatedAt,
	})
}

type profileResponse struct {
	Profile profile.StyleProfile `json:"profile"`
	Stored  bool                 `json:"stored"`
}

func (h *appHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, found, err := h.deps.Profiles.Get(chi.URLParam(r, "userID"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p, Stored: found})
}

// putProfile accepts a hand-edited profile. It goes through the same
// field-by-field parser as analysis output.
func (h *appHandler) putProfile(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	p, err := profile.Parse(raw)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "profile must be a JSON object")
		return
	}
	if err := h.deps.Profiles.Replace(chi.URLParam(r, "userID"), p); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *appHandler) setSatisfaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s, ok := profile.ParseSatisfaction(req.Value)
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "value must be one of like, dislike, none")
		return
	}
	err := h.deps.Profiles.SetSatisfaction(chi.URLParam(r, "userID"), s)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "no style profile for user; analyze a sample first")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save satisfaction: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "satisfaction": string(s)})
}

type generateRequest struct {
	generator.Params
	UseProfile bool `json:"use_profile"`
}

func (h *appHandler) generate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := req.Params
	if req.UseProfile {
		p, found, err := h.deps.Profiles.Get(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		if found {
			params.Fingerprint = &p
		}
	}

	res, err := h.deps.Generator.Generate(r.Context(), userID, params)
	if err != nil {
		writeServiceError(w, h.logger, "generation", err)
		return
	}

	if err := saveGeneration(h.deps.Store, userID, params, res); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save generation: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func saveGeneration(store *storage.Store, userID string, params generator.Params, res generator.Result) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	altJSON, err := json.Marshal(res.Alternatives)
	if err != nil {
		return err
	}
	return store.SaveGeneration(storage.Generation{
		ID:           res.ID,
		UserID:       userID,
		CreatedAt:    res.CreatedAt,
		Topic:        params.Topic,
		ParamsJSON:   string(paramsJSON),
		Content:      res.Content,
		Alternatives: string(altJSON),
		Confidence:   res.Confidence,
		Model:        res.Model,
		APIVersion:   res.APIVersion,
	})
}

type generationRecord struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Topic        string          `json:"topic"`
	Params       json.RawMessage `json:"params"`
	Content      string          `json:"content"`
	Alternatives []string        `json:"alternatives"`
	Confidence   float64         `json:"confidence"`
	Model        string          `json:"model"`
	APIVersion   string          `json:"api_version"`
}

func (h *appHandler) listGenerations(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20, 100)

	gens, err := h.deps.Store.ListGenerations(chi.URLParam(r, "userID"), limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list generations: %v", err)
		return
	}

	out := make([]generationRecord, 0, len(gens))
	for _, g := range gens {
		rec := generationRecord{
			ID:           g.ID,
			CreatedAt:    g.CreatedAt,
			Topic:        g.Topic,
			Params:       json.RawMessage(g.ParamsJSON),
			Content:      g.Content,
			Alternatives: []string{},
			Confidence:   g.Confidence,
			Model:        g.Model,
			APIVersion:   g.APIVersion,
		}
		if !json.Valid(rec.Params) {
			rec.Params = json.RawMessage("{}")
		}
		_ = json.Unmarshal([]byte(g.Alternatives), &rec.Alternatives)
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *appHandler) compile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile json.RawMessage `json:"profile"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := profile.Parse(req.Profile)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "profile must be a JSON object")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": composer.Compile(p)})
}

type keyRequest struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
}

func (h *appHandler) validateKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	valid := h.deps.Validator.Validate(r.Context(), req.Provider, req.Key)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *appHandler) putKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if !credentials.Supported(provider) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported provider %q", provider)
		return
	}

	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "key is required")
		return
	}
	if !h.deps.Validator.Validate(r.Context(), provider, key) {
		httpError(w, http.StatusUnprocessableEntity, "invalid_key", "the %s key was rejected; check it and try again", provider)
		return
	}
	if err := h.deps.Store.SetAPIKey(userID, provider, key); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save key: %v", err)
		return
	}

	cred := credentials.Credential{Provider: provider, Key: key}
	h.logger.Info("api key saved", "user_id", userID, "provider", provider, "fingerprint", cred.Fingerprint())
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "provider": provider, "key": cred.Redacted()})
}

func (h *appHandler) deleteKey(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Store.DeleteAPIKey(chi.URLParam(r, "userID"), strings.ToLower(chi.URLParam(r, "provider")))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "no key stored for provider")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete key: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
