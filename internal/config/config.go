// Package config loads the externally supplied pipeline resources, the
// per-stage prompt templates and the augmentation trigger keywords,
// plus optional app-level settings. Prompt and keyword files are validated
// strictly at load time: a malformed file is a construction failure, not
// something to limp along with at generation time. Built-in defaults are
// baked into the binary so the tool runs without any config directory.
package config

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"proposalnerd/internal/faults"
	"proposalnerd/internal/logging"

	"gopkg.in/yaml.v3"
)

//go:embed defaults
var defaults embed.FS

// StageKeys are the prompt entries every prompts file must carry, one
// per generation stage plus the supplementary review.
var StageKeys = []string{
	"understanding",
	"solution_overview",
	"architecture_text",
	"architecture_diagram",
	"oem_review",
}

// Settings are optional app-level knobs read from config.yaml. Absence
// of the file is never an error.
type Settings struct {
	Model       string `yaml:"model"`
	DebugLogs   bool   `yaml:"debug_logs"`
	RenderWidth int    `yaml:"render_width"`
}

// Config is the validated, immutable pipeline configuration.
type Config struct {
	Prompts  map[string]string
	Keywords []string
	Settings Settings
}

// Load reads prompts.json, keywords.json and config.yaml from dir,
// substituting the embedded defaults for any file that is absent. A file
// that exists but is malformed fails the load with a ConfigError; the
// optional settings file alone can never fail the load.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	prompts, err := loadPromptsFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Prompts = prompts

	keywords, err := loadKeywordsFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Keywords = keywords

	cfg.Settings = loadSettingsFrom(dir)
	logging.Boot("configuration loaded: %d prompts, %d trigger keywords", len(prompts), len(keywords))
	return cfg, nil
}

func loadPromptsFrom(dir string) (map[string]string, error) {
	data, err := readOrDefault(dir, "prompts.json")
	if err != nil {
		return nil, faults.NewConfigError("prompts.json", "cannot read prompts file", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts validates a prompts resource: a JSON object mapping stage
// keys to non-empty template strings, with every key in StageKeys present.
func ParsePrompts(data []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, faults.NewConfigError("prompts.json", "malformed JSON", err)
	}

	prompts := make(map[string]string, len(raw))
	for key, val := range raw {
		var s string
		if err := json.Unmarshal(val, &s); err != nil {
			return nil, faults.NewConfigError("prompts.json", "prompt "+key+" is not a string", err)
		}
		prompts[key] = s
	}

	var missing []string
	for _, key := range StageKeys {
		if strings.TrimSpace(prompts[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, faults.NewConfigError("prompts.json",
			"missing prompt keys: "+strings.Join(missing, ", "), nil)
	}
	return prompts, nil
}

func loadKeywordsFrom(dir string) ([]string, error) {
	data, err := readOrDefault(dir, "keywords.json")
	if err != nil {
		return nil, faults.NewConfigError("keywords.json", "cannot read keywords file", err)
	}
	return ParseKeywords(data)
}

// ParseKeywords validates a keywords resource: a non-empty JSON list of
// non-empty strings. Keywords are lowercased on load; matching downstream
// is case-insensitive.
func ParseKeywords(data []byte) ([]string, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, faults.NewConfigError("keywords.json", "malformed JSON, expected a list of strings", err)
	}

	keywords := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return nil, faults.NewConfigError("keywords.json", "empty keyword in list", nil)
		}
		keywords = append(keywords, k)
	}
	if len(keywords) == 0 {
		return nil, faults.NewConfigError("keywords.json", "keyword list is empty", nil)
	}
	return keywords, nil
}

// DefaultPrompt returns the built-in template for a stage key. The
// embedded resource is validated at build time, so a bad key simply
// yields "".
func DefaultPrompt(key string) string {
	data, err := defaults.ReadFile("defaults/prompts.json")
	if err != nil {
		return ""
	}
	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return ""
	}
	return prompts[key]
}

// readOrDefault reads name from dir, falling back to the embedded copy
// when dir is unset or the file does not exist.
func readOrDefault(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
		logging.BootDebug("no %s override in %s, using built-in resource", name, dir)
	}
	return defaults.ReadFile("defaults/" + name)
}

func loadSettingsFrom(dir string) Settings {
	var s Settings
	if dir == "" {
		return s
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return s
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		logging.Boot("ignoring malformed config.yaml: %v", err)
		return Settings{}
	}
	return s
}
