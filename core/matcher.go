package core

import (
	"net/http"
	"net/url"
	"strings"
	"uaswitch/database"
	"uaswitch/filter"
	"uaswitch/logger"
	"uaswitch/models"
)

type compiledEntry struct {
	rule          models.CompiledRule
	filter        *filter.Filter
	resourceTypes map[string]bool // nil means every type except main_frame
}

// RuleMatcher evaluates a fixed rule set against requests.
type RuleMatcher struct {
	entries []compiledEntry
}

// NewRuleMatcher compiles rules, ordered by descending priority then ascending id.
// Rules with an invalid urlFilter are skipped.
func NewRuleMatcher(rules []models.CompiledRule) *RuleMatcher {
	sorted := make([]models.CompiledRule, len(rules))
	copy(sorted, rules)
	database.SortRules(sorted)

	m := &RuleMatcher{entries: make([]compiledEntry, 0, len(sorted))}
	for _, r := range sorted {
		f, err := filter.Compile(r.Condition.URLFilter)
		if err != nil {
			logger.ProxyError("Skipping rule %d: %v", r.ID, err)
			continue
		}
		e := compiledEntry{rule: r, filter: f}
		if len(r.Condition.ResourceTypes) > 0 {
			e.resourceTypes = make(map[string]bool, len(r.Condition.ResourceTypes))
			for _, rt := range r.Condition.ResourceTypes {
				e.resourceTypes[rt] = true
			}
		}
		m.entries = append(m.entries, e)
	}
	return m
}

// Len returns the number of usable rules.
func (m *RuleMatcher) Len() int {
	return len(m.entries)
}

func (e compiledEntry) matchesType(resourceType string) bool {
	if e.resourceTypes == nil {
		return resourceType != models.ResourceMainFrame
	}
	return e.resourceTypes[resourceType]
}

// Match returns the highest-priority rule that applies to u for the given resource type.
func (m *RuleMatcher) Match(u *url.URL, resourceType string) (models.CompiledRule, bool) {
	if u == nil {
		return models.CompiledRule{}, false
	}
	rawURL := u.String()
	host := u.Hostname()
	for _, e := range m.entries {
		if !e.matchesType(resourceType) {
			continue
		}
		if len(e.rule.Condition.ExcludedRequestDomains) > 0 && filter.AnyDomainMatches(host, e.rule.Condition.ExcludedRequestDomains) {
			continue
		}
		if !e.filter.Match(rawURL) {
			continue
		}
		return e.rule, true
	}
	return models.CompiledRule{}, false
}

// ApplyRule performs the rule's request header operations on h.
func ApplyRule(h http.Header, rule models.CompiledRule) {
	for _, mod := range rule.Action.RequestHeaders {
		switch mod.Operation {
		case models.HeaderOperationSet:
			h.Set(mod.Header, mod.Value)
		case models.HeaderOperationAppend:
			if existing := h.Get(mod.Header); existing != "" {
				h.Set(mod.Header, existing+" "+mod.Value)
			} else {
				h.Set(mod.Header, mod.Value)
			}
		case models.HeaderOperationRemove:
			h.Del(mod.Header)
		}
	}
}

// ResourceTypeFromRequest classifies a request using the headers browsers send.
func ResourceTypeFromRequest(r *http.Request) string {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return models.ResourceWebSocket
	}
	switch strings.ToLower(r.Header.Get("Sec-Fetch-Dest")) {
	case "document":
		return models.ResourceMainFrame
	case "iframe", "frame", "fencedframe":
		return models.ResourceSubFrame
	case "style":
		return models.ResourceStylesheet
	case "script", "worker", "sharedworker", "serviceworker", "paintworklet", "audioworklet":
		return models.ResourceScript
	case "image":
		return models.ResourceImage
	case "font":
		return models.ResourceFont
	case "object", "embed":
		return models.ResourceObject
	case "audio", "video", "track":
		return models.ResourceMedia
	case "report":
		return models.ResourcePing
	case "webbundle":
		return models.ResourceWebBundle
	case "empty":
		if r.Header.Get("Ping-To") != "" || strings.EqualFold(r.Header.Get("Content-Type"), "text/ping") {
			return models.ResourcePing
		}
		return models.ResourceXMLHTTPRequest
	}
	return models.ResourceOther
}

// RequestURL returns the absolute URL of a proxied request.
func RequestURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		if r.TLS != nil {
			u.Scheme = "https"
		} else {
			u.Scheme = "http"
		}
	}
	return &u
}

// EffectiveUserAgent applies rule to a copy of h and returns the resulting User-Agent.
func EffectiveUserAgent(h http.Header, rule models.CompiledRule) string {
	clone := h.Clone()
	if clone == nil {
		clone = http.Header{}
	}
	ApplyRule(clone, rule)
	return clone.Get(models.UserAgentHeader)
}
