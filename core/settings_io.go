package core

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"uaswitch/models"

	"github.com/muhammadmuzzammil1998/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// settingsDocument is the import/export shape. Absent keys stay nil so an import
// only touches the keys the document names.
type settingsDocument struct {
	Enabled         *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Mode            *models.Mode           `json:"mode,omitempty" yaml:"mode,omitempty"`
	UserAgent       *string                `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	SiteRules       *[]models.SiteRule     `json:"siteRules,omitempty" yaml:"siteRules,omitempty"`
	CustomPresets   *[]models.CustomPreset `json:"customPresets,omitempty" yaml:"customPresets,omitempty"`
	ExcludedDomains *[]string              `json:"excludedDomains,omitempty" yaml:"excludedDomains,omitempty"`
}

// FormatFromPath picks yaml for .yaml/.yml files and json otherwise.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// DecodeSettingsPatch parses a settings document. JSON input may contain comments.
// The returned patch is normalized the same way the editor normalizes a save.
func DecodeSettingsPatch(data []byte, format string) (models.SettingsPatch, error) {
	var doc settingsDocument
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return models.SettingsPatch{}, fmt.Errorf("parsing YAML settings: %w", err)
		}
	case FormatJSON, "":
		if !jsonc.Valid(data) {
			return models.SettingsPatch{}, fmt.Errorf("parsing JSON settings: document is not valid JSON")
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return models.SettingsPatch{}, fmt.Errorf("parsing JSON settings: %w", err)
		}
	default:
		return models.SettingsPatch{}, fmt.Errorf("unsupported settings format %q", format)
	}

	patch := models.SettingsPatch{
		Enabled:         doc.Enabled,
		Mode:            doc.Mode,
		UserAgent:       doc.UserAgent,
		SiteRules:       doc.SiteRules,
		CustomPresets:   doc.CustomPresets,
		ExcludedDomains: doc.ExcludedDomains,
	}
	return NormalizePatch(patch)
}

// NormalizePatch trims values, drops empty rows and validates the mode.
func NormalizePatch(patch models.SettingsPatch) (models.SettingsPatch, error) {
	var s models.Settings
	if patch.UserAgent != nil {
		s.UserAgent = *patch.UserAgent
	}
	if patch.Mode != nil {
		s.Mode = *patch.Mode
	}
	if patch.SiteRules != nil {
		s.SiteRules = *patch.SiteRules
	}
	if patch.ExcludedDomains != nil {
		s.ExcludedDomains = *patch.ExcludedDomains
	}
	n := s.Normalize()

	out := patch
	if patch.UserAgent != nil {
		out.UserAgent = &n.UserAgent
	}
	if patch.Mode != nil {
		if !n.Mode.Valid() {
			return models.SettingsPatch{}, fmt.Errorf("invalid mode %q (want %q or %q)", *patch.Mode, models.ModeAll, models.ModePerSite)
		}
		out.Mode = &n.Mode
	}
	if patch.SiteRules != nil {
		out.SiteRules = &n.SiteRules
	}
	if patch.ExcludedDomains != nil {
		out.ExcludedDomains = &n.ExcludedDomains
	}
	if patch.CustomPresets != nil {
		presets := make([]models.CustomPreset, 0, len(*patch.CustomPresets))
		for _, p := range *patch.CustomPresets {
			p.Name = strings.TrimSpace(p.Name)
			p.UserAgent = strings.TrimSpace(p.UserAgent)
			if p.Name == "" || p.UserAgent == "" {
				continue
			}
			presets = append(presets, p)
		}
		out.CustomPresets = &presets
	}
	return out, nil
}

// EncodeSettings renders the full settings record.
func EncodeSettings(s models.Settings, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(s)
	case FormatJSON, "":
		return json.MarshalIndent(s, "", "  ")
	}
	return nil, fmt.Errorf("unsupported settings format %q", format)
}
