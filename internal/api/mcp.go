package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpnssflw/voicekeeper/internal/analyzer"
	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/composer"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/generator"
	"github.com/hpnssflw/voicekeeper/internal/profile"
	"github.com/hpnssflw/voicekeeper/internal/storage"
)

// DefaultMCPUser is the user the MCP tools act for when none is configured.
const DefaultMCPUser = "local"

// MCPDeps holds dependencies for the MCP server. The stdio transport has a
// single caller, so every tool acts for UserID.
type MCPDeps struct {
	Store     *storage.Store
	Profiles  *profile.Manager
	Creds     credentials.Provider
	Analyzer  StyleAnalyzer
	Generator PostGenerator
	Validator KeyValidator
	UserID    string
}

func (d MCPDeps) user() string {
	if d.UserID == "" {
		return DefaultMCPUser
	}
	return d.UserID
}

// NewMCPServer creates an MCP server with the voicekeeper tools and the
// style profile resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"voicekeeper",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("voicekeeper learns an author's writing style and writes channel posts in that voice."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_style",
			mcp.WithDescription("Analyze a writing sample (at least 100 characters) and store it as the author's style profile."),
			mcp.WithString("text", mcp.Description("Writing sample by the author"), mcp.Required()),
		),
		mcpAnalyzeStyle(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_post",
			mcp.WithDescription("Write a channel post on a topic, in the author's voice when a style profile exists."),
			mcp.WithString("topic", mcp.Description("What the post is about"), mcp.Required()),
			mcp.WithString("tone", mcp.Description(strings.Join(generator.Tones(), ", ")+", or free text")),
			mcp.WithString("length", mcp.Description("short, medium or long")),
			mcp.WithBoolean("include_emoji", mcp.Description("Allow emoji in the post")),
			mcp.WithBoolean("include_cta", mcp.Description("End with a call to action")),
			mcp.WithString("custom_instructions", mcp.Description("Extra instructions appended to the request")),
			mcp.WithBoolean("use_profile", mcp.Description("Write in the stored style (default true)")),
			mcp.WithBoolean("alternative", mcp.Description("Also produce one alternative version")),
		),
		mcpGeneratePost(deps),
	)

	s.AddTool(
		mcp.NewTool("compile_prompt",
			mcp.WithDescription("Render a style profile as the system prompt used for generation."),
			mcp.WithString("profile", mcp.Description("Style profile JSON; the stored profile is used when omitted")),
		),
		mcpCompilePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_key",
			mcp.WithDescription("Check whether an API key can generate content."),
			mcp.WithString("provider", mcp.Description("Provider name, e.g. gemini"), mcp.Required()),
			mcp.WithString("key", mcp.Description("API key to check"), mcp.Required()),
		),
		mcpValidateKey(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"style://profile",
			"Style Profile",
			mcp.WithResourceDescription("The author's current style profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func mcpAnalyzeStyle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		if err := analyzer.CheckSample(text); err != nil {
			return mcpError(err.Error()), nil
		}

		cred, err := deps.Creds.GetKey(ctx, deps.user(), credentials.ProviderGemini)
		if err != nil {
			return mcpError(toolFailure(err)), nil
		}
		p, err := deps.Analyzer.Analyze(ctx, cred, text)
		if err != nil {
			return mcpError(toolFailure(err)), nil
		}
		if err := deps.Profiles.Replace(deps.user(), p); err != nil {
			return mcpError(fmt.Sprintf("failed to save profile: %v", err)), nil
		}
		return mcpJSON(p.Normalize())
	}
}

func mcpGeneratePost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil || strings.TrimSpace(topic) == "" {
			return mcpError("topic is required"), nil
		}

		params := generator.Params{
			Topic:              topic,
			Tone:               req.GetString("tone", ""),
			Length:             req.GetString("length", ""),
			IncludeEmoji:       req.GetBool("include_emoji", false),
			IncludeCTA:         req.GetBool("include_cta", false),
			CustomInstructions: req.GetString("custom_instructions", ""),
			Alternative:        req.GetBool("alternative", false),
		}
		if req.GetBool("use_profile", true) {
			p, found, err := deps.Profiles.Get(deps.user())
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
			}
			if found {
				params.Fingerprint = &p
			}
		}

		res, err := deps.Generator.Generate(ctx, deps.user(), params)
		if err != nil {
			return mcpError(toolFailure(err)), nil
		}
		if err := saveGeneration(deps.Store, deps.user(), params, res); err != nil {
			return mcpError(fmt.Sprintf("post generated but failed to save: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpCompilePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("profile", "")
		if strings.TrimSpace(raw) == "" {
			p, found, err := deps.Profiles.Get(deps.user())
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
			}
			if !found {
				return mcpError("no style profile stored; run analyze_style first or pass a profile"), nil
			}
			return mcpText(composer.Compile(p)), nil
		}

		p, err := profile.Parse([]byte(raw))
		if err != nil {
			return mcpError("profile must be a JSON object"), nil
		}
		return mcpText(composer.Compile(p)), nil
	}
}

func mcpValidateKey(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		provider, err := req.RequireString("provider")
		if err != nil {
			return mcpError("provider is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		if deps.Validator.Validate(ctx, provider, key) {
			return mcpText("valid"), nil
		}
		return mcpText("invalid"), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, _, err := deps.Profiles.Get(deps.user())
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// toolFailure turns a pipeline error into a message for the MCP client.
func toolFailure(err error) string {
	switch {
	case errors.Is(err, generator.ErrNoCredential), errors.Is(err, credentials.ErrNotFound):
		return "no Gemini API key configured; add one with `voicekeeper key set gemini <key>`"
	case errors.Is(err, cascade.ErrExhausted):
		return "generation unavailable, try again"
	default:
		return err.Error()
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
