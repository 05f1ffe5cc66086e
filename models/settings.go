package models

import "strings"

// Mode selects how the User-Agent override is applied.
type Mode string

const (
	ModeAll     Mode = "all"     // one blanket rule with exclusions
	ModePerSite Mode = "perSite" // one rule per site mapping, no exclusions
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeAll || m == ModePerSite
}

// SiteRule maps a bare hostname (no scheme, no wildcard) to a User-Agent.
type SiteRule struct {
	Domain    string `json:"domain" yaml:"domain" example:"example.com"`
	UserAgent string `json:"userAgent" yaml:"userAgent"`
}

// Complete reports whether both fields are set. Incomplete rules are skipped by the compiler.
func (r SiteRule) Complete() bool {
	return r.Domain != "" && r.UserAgent != ""
}

// CustomPreset is a named User-Agent the user saved for quick selection.
type CustomPreset struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"` // Assigned when saved through the API or CLI
	Name      string `json:"name" yaml:"name" example:"Firefox on Linux"`
	UserAgent string `json:"userAgent" yaml:"userAgent"`
}

// Settings is the singleton configuration record persisted in app_settings.
// Each top-level field is stored under its own key (see the Settings*Key constants).
type Settings struct {
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	Mode            Mode           `json:"mode" yaml:"mode" example:"all"`
	UserAgent       string         `json:"userAgent" yaml:"userAgent"`
	SiteRules       []SiteRule     `json:"siteRules" yaml:"siteRules"`
	CustomPresets   []CustomPreset `json:"customPresets" yaml:"customPresets"`
	ExcludedDomains []string       `json:"excludedDomains" yaml:"excludedDomains"`
}

// SettingsPatch carries the subset of settings keys to write. Nil fields are left untouched.
type SettingsPatch struct {
	Enabled         *bool
	Mode            *Mode
	UserAgent       *string
	SiteRules       *[]SiteRule
	CustomPresets   *[]CustomPreset
	ExcludedDomains *[]string
}

// FullPatch returns a patch that overwrites every key with the values in s.
func (s Settings) FullPatch() SettingsPatch {
	enabled := s.Enabled
	mode := s.Mode
	ua := s.UserAgent
	siteRules := s.SiteRules
	presets := s.CustomPresets
	excluded := s.ExcludedDomains
	return SettingsPatch{
		Enabled:         &enabled,
		Mode:            &mode,
		UserAgent:       &ua,
		SiteRules:       &siteRules,
		CustomPresets:   &presets,
		ExcludedDomains: &excluded,
	}
}

// Keys lists the settings keys present in the patch.
func (p SettingsPatch) Keys() []string {
	var keys []string
	if p.Enabled != nil {
		keys = append(keys, SettingsEnabledKey)
	}
	if p.Mode != nil {
		keys = append(keys, SettingsModeKey)
	}
	if p.UserAgent != nil {
		keys = append(keys, SettingsUserAgentKey)
	}
	if p.SiteRules != nil {
		keys = append(keys, SettingsSiteRulesKey)
	}
	if p.CustomPresets != nil {
		keys = append(keys, SettingsCustomPresetsKey)
	}
	if p.ExcludedDomains != nil {
		keys = append(keys, SettingsExcludedDomainsKey)
	}
	return keys
}

// Keys used in app_settings for the settings record.
const (
	SettingsEnabledKey         = "enabled"
	SettingsModeKey            = "mode"
	SettingsUserAgentKey       = "userAgent"
	SettingsSiteRulesKey       = "siteRules"
	SettingsCustomPresetsKey   = "customPresets"
	SettingsExcludedDomainsKey = "excludedDomains"
)

// SettingsRevisionKey is bumped on every settings write. Other processes watch it
// to tell settings changes apart from rule table writes.
const SettingsRevisionKey = "_revision"

// DefaultExcludedDomains is the built-in exclusion list used when the user leaves
// excludedDomains empty.
var DefaultExcludedDomains = []string{
	"chatgpt.com",
	"chat.openai.com",
	"openai.com",
	"oaistatic.com",
	"oaiusercontent.com",
}

// DefaultSettings returns the record a fresh installation starts from.
func DefaultSettings() Settings {
	excluded := make([]string, len(DefaultExcludedDomains))
	copy(excluded, DefaultExcludedDomains)
	return Settings{
		Enabled:         false,
		Mode:            ModeAll,
		UserAgent:       "",
		SiteRules:       []SiteRule{},
		CustomPresets:   []CustomPreset{},
		ExcludedDomains: excluded,
	}
}

// Normalize trims whitespace the way the editor does before a save and drops rule rows
// where both domain and User-Agent are empty. Empty excluded-domain rows are dropped too.
func (s Settings) Normalize() Settings {
	out := s
	out.UserAgent = strings.TrimSpace(s.UserAgent)
	out.Mode = Mode(strings.TrimSpace(string(s.Mode)))

	out.SiteRules = make([]SiteRule, 0, len(s.SiteRules))
	for _, r := range s.SiteRules {
		r.Domain = strings.TrimSpace(r.Domain)
		r.UserAgent = strings.TrimSpace(r.UserAgent)
		if r.Domain == "" && r.UserAgent == "" {
			continue
		}
		out.SiteRules = append(out.SiteRules, r)
	}

	out.ExcludedDomains = make([]string, 0, len(s.ExcludedDomains))
	for _, d := range s.ExcludedDomains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		out.ExcludedDomains = append(out.ExcludedDomains, d)
	}

	if s.CustomPresets == nil {
		out.CustomPresets = []CustomPreset{}
	}
	return out
}

// ResolvedExcludedDomains returns excludedDomains, or the built-in list when it is empty.
func (s Settings) ResolvedExcludedDomains() []string {
	if len(s.ExcludedDomains) > 0 {
		return s.ExcludedDomains
	}
	return DefaultExcludedDomains
}
