package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"github.com/hpnssflw/voicekeeper/internal/composer"
	"github.com/hpnssflw/voicekeeper/internal/config"
	"github.com/hpnssflw/voicekeeper/internal/generator"
	"github.com/hpnssflw/voicekeeper/internal/profile"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Learn the author's style from a writing sample",
	Long: `Analyze a writing sample and store the result as the style profile.

Examples:
  voicekeeper analyze --file ./posts.md
  voicekeeper analyze --file ./essay.pdf --async
  voicekeeper analyze --text "..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		async, _ := cmd.Flags().GetBool("async")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			var err error
			if text, err = readSample(file); err != nil {
				return err
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), userPath(userID, "analyze"), map[string]any{
			"text":  text,
			"async": async,
		})
		if err != nil {
			return err
		}

		if async {
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued analysis job %s", result["job_id"])
			fmt.Fprintf(os.Stderr, "  check progress with: voicekeeper job %s\n", result["job_id"])
			return nil
		}

		var p profile.StyleProfile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		if p.IsInconclusive() {
			printWarning("The sample could not be analysed reliably; default style stored")
		} else {
			printSuccess("Style profile updated")
		}
		return printJSON(p)
	},
}

func init() {
	analyzeCmd.Flags().String("text", "", "writing sample text")
	analyzeCmd.Flags().String("file", "", "writing sample file (.txt, .md or .pdf)")
	analyzeCmd.Flags().Bool("async", false, "queue the analysis and return immediately")
}

// readSample loads a writing sample. PDFs are reduced to their plain text.
func readSample(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return readPDFText(path)
	case ".txt", ".md", ".markdown", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type %q (use .txt, .md or .pdf)", filepath.Ext(path))
	}
}

func readPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show the state of a queued analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}
		var job struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			Attempts  int    `json:"attempts"`
			LastError string `json:"last_error"`
		}
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printStatus("Job", "%s", job.ID)
		printStatus("Status", "%s", job.Status)
		printStatus("Attempts", "%d", job.Attempts)
		if job.LastError != "" {
			printStatus("Last error", "%s", job.LastError)
		}
		return nil
	},
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a post in the stored style",
	Long: `Write a channel post on a topic.

Examples:
  voicekeeper generate --topic "AI in marketing" --length short --emoji
  voicekeeper generate --topic "Product launch" --tone humorous --alternative`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("--topic is required")
		}
		tone, _ := cmd.Flags().GetString("tone")
		length, _ := cmd.Flags().GetString("length")
		emoji, _ := cmd.Flags().GetBool("emoji")
		cta, _ := cmd.Flags().GetBool("cta")
		instructions, _ := cmd.Flags().GetString("instructions")
		alternative, _ := cmd.Flags().GetBool("alternative")
		noProfile, _ := cmd.Flags().GetBool("no-profile")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), userPath(userID, "generate"), map[string]any{
			"topic":               topic,
			"tone":                tone,
			"length":              length,
			"include_emoji":       emoji,
			"include_cta":         cta,
			"custom_instructions": instructions,
			"alternative":         alternative,
			"use_profile":         !noProfile,
		})
		if err != nil {
			return err
		}

		var res generator.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printPost(res)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("topic", "", "what the post is about")
	generateCmd.Flags().String("tone", "", strings.Join(generator.Tones(), ", ")+" or free text")
	generateCmd.Flags().String("length", "medium", "short, medium or long")
	generateCmd.Flags().Bool("emoji", false, "allow emoji")
	generateCmd.Flags().Bool("cta", false, "end with a call to action")
	generateCmd.Flags().String("instructions", "", "extra instructions for this post")
	generateCmd.Flags().Bool("alternative", false, "also write one alternative version")
	generateCmd.Flags().Bool("no-profile", false, "ignore the stored style profile")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), userPath(userID, fmt.Sprintf("generations?limit=%d", limit)))
		if err != nil {
			return err
		}

		var gens []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Topic     string `json:"topic"`
			Model     string `json:"model"`
		}
		if err := decodeJSON(resp, &gens); err != nil {
			return err
		}
		if len(gens) == 0 {
			fmt.Println("No generations yet.")
			return nil
		}
		for _, g := range gens {
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, shortID(g.ID)),
				g.CreatedAt,
				colorize(colorBold, truncate(g.Topic, 60)),
				g.Model,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of generations to list")
}

// --- compile ---

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the system prompt a style profile compiles to",
	Long: `Print the system prompt a style profile compiles to.

With --file the profile is read from a JSON file and compiled locally;
otherwise the stored profile is fetched from the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var p profile.StyleProfile
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if p, err = profile.Parse(data); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
		} else {
			stored, err := fetchProfile(cmd)
			if err != nil {
				return err
			}
			if !stored.Stored {
				printWarning("No stored profile for %s; compiling the default style", userID)
			}
			p = stored.Profile
		}

		fmt.Println(composer.Compile(p))
		return nil
	},
}

func init() {
	compileCmd.Flags().String("file", "", "style profile JSON file")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the style profile",
}

type storedProfile struct {
	Profile profile.StyleProfile `json:"profile"`
	Stored  bool                 `json:"stored"`
}

func fetchProfile(cmd *cobra.Command) (storedProfile, error) {
	client, err := newAPIClient()
	if err != nil {
		return storedProfile{}, err
	}
	resp, err := client.get(cmd.Context(), userPath(userID, "profile"))
	if err != nil {
		return storedProfile{}, err
	}
	var sp storedProfile
	if err := decodeJSON(resp, &sp); err != nil {
		return storedProfile{}, err
	}
	return sp, nil
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current style profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := fetchProfile(cmd)
		if err != nil {
			return err
		}
		if !sp.Stored {
			printWarning("No stored profile for %s; showing defaults", userID)
		}
		return printJSON(sp.Profile)
	},
}

var profileSetSatisfactionCmd = &cobra.Command{
	Use:       "set-satisfaction <like|dislike|none>",
	Short:     "Record how well the last posts matched the author's voice",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"like", "dislike", "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := profile.ParseSatisfaction(args[0]); !ok {
			return fmt.Errorf("satisfaction must be one of like, dislike, none")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), userPath(userID, "profile/satisfaction"), map[string]string{"value": args[0]})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Satisfaction set to %s", result["satisfaction"])
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the style profile JSON in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		sp, err := fetchProfile(cmd)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(sp.Profile, "", "  ")
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "voicekeeper-profile-*.json")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		var raw map[string]any
		if err := json.Unmarshal(edited, &raw); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), userPath(userID, "profile"), raw)
		if err != nil {
			return err
		}
		var saved profile.StyleProfile
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}

		printSuccess("Profile updated")
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetSatisfactionCmd)
	profileCmd.AddCommand(profileEditCmd)
}

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys",
}

var keySetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Validate and store an API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, key := strings.ToLower(args[0]), args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Checking the %s key...", provider)
		resp, err := client.put(cmd.Context(), userPath(userID, "keys/"+provider), map[string]string{"key": key})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Saved %s key %s", provider, result["key"])
		return nil
	},
}

var keyValidateCmd = &cobra.Command{
	Use:   "validate <provider> <key>",
	Short: "Check an API key without storing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/keys/validate", map[string]string{"provider": args[0], "key": args[1]})
		if err != nil {
			return err
		}
		var result struct {
			Valid bool `json:"valid"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if !result.Valid {
			printError("The %s key was rejected", args[0])
			return fmt.Errorf("invalid key")
		}
		printSuccess("The %s key works", args[0])
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), userPath(userID, "keys/"+strings.ToLower(args[0])))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Removed %s key", args[0])
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyValidateCmd)
	keyCmd.AddCommand(keyDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", ") +
		"\n\nSecrets such as gemini.api_key are read from the environment or the secrets file only.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
