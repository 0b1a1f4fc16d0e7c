package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a site configuration file, applies defaults, and validates it.
// Both JSON and YAML files are supported, selected by file extension. A
// validation failure here is fatal for the run: the pipeline never sees a
// configuration that violates its invariants.
func Load(path string) (*SiteConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := defaultSiteConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(filterComments(raw), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return &cfg, nil
}

// defaultSiteConfig returns a SiteConfig pre-filled with defaults so that
// absent keys keep their default values after unmarshalling.
func defaultSiteConfig() SiteConfig {
	return SiteConfig{
		UpdateInterval:       3600,
		AIEnhancementEnabled: true,
	}
}

// filterComments strips "//"-prefixed keys from a JSON config document so
// users can annotate their configuration files.
func filterComments(raw []byte) []byte {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Leave malformed JSON untouched; Load reports the parse error.
		return raw
	}

	filtered, err := json.Marshal(stripCommentKeys(doc))
	if err != nil {
		return raw
	}
	return filtered
}

func stripCommentKeys(doc any) any {
	switch node := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			if strings.HasPrefix(key, "//") {
				continue
			}
			out[key] = stripCommentKeys(value)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, value := range node {
			out[i] = stripCommentKeys(value)
		}
		return out
	default:
		return doc
	}
}
