package models

// CompiledRule is one declarative header-rewrite instruction. The JSON shape follows the
// declarativeNetRequest rule format so rule sets can be exported as-is.
type CompiledRule struct {
	ID        int           `json:"id" example:"1"`
	Priority  int           `json:"priority" example:"1"`
	Action    RuleAction    `json:"action"`
	Condition RuleCondition `json:"condition"`
}

// RuleAction describes what to do with a matching request.
type RuleAction struct {
	Type           string              `json:"type" example:"modifyHeaders"`
	RequestHeaders []HeaderModification `json:"requestHeaders,omitempty"`
}

// HeaderModification is a single request header operation.
type HeaderModification struct {
	Header    string `json:"header" example:"User-Agent"`
	Operation string `json:"operation" example:"set"`
	Value     string `json:"value,omitempty"`
}

// RuleCondition decides which requests a rule applies to.
type RuleCondition struct {
	URLFilter              string   `json:"urlFilter" example:"||example.com"`
	ResourceTypes          []string `json:"resourceTypes,omitempty"`
	ExcludedRequestDomains []string `json:"excludedRequestDomains,omitempty"`
}

// RuleUpdate is a single all-or-nothing change to the active rule table.
type RuleUpdate struct {
	RemoveRuleIDs []int          `json:"removeRuleIds,omitempty"`
	AddRules      []CompiledRule `json:"addRules,omitempty"`
}

const (
	ActionModifyHeaders = "modifyHeaders"

	HeaderOperationSet    = "set"
	HeaderOperationAppend = "append"
	HeaderOperationRemove = "remove"

	UserAgentHeader = "User-Agent"

	// URLFilterAll matches every URL.
	URLFilterAll = "*"
)

// Resource types a rule can target.
const (
	ResourceMainFrame      = "main_frame"
	ResourceSubFrame       = "sub_frame"
	ResourceStylesheet     = "stylesheet"
	ResourceScript         = "script"
	ResourceImage          = "image"
	ResourceFont           = "font"
	ResourceObject         = "object"
	ResourceXMLHTTPRequest = "xmlhttprequest"
	ResourcePing           = "ping"
	ResourceMedia          = "media"
	ResourceWebSocket      = "websocket"
	ResourceWebTransport   = "webtransport"
	ResourceWebBundle      = "webbundle"
	ResourceOther          = "other"
)

// AllResourceTypes is the fixed enumeration every compiled rule targets, in order.
var AllResourceTypes = []string{
	ResourceMainFrame,
	ResourceSubFrame,
	ResourceStylesheet,
	ResourceScript,
	ResourceImage,
	ResourceFont,
	ResourceObject,
	ResourceXMLHTTPRequest,
	ResourcePing,
	ResourceMedia,
	ResourceWebSocket,
	ResourceWebTransport,
	ResourceWebBundle,
	ResourceOther,
}

// IsResourceType reports whether t is a known resource type.
func IsResourceType(t string) bool {
	for _, rt := range AllResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// RuleMatchResult is returned by the rule match endpoint and CLI.
type RuleMatchResult struct {
	URL          string        `json:"url"`
	ResourceType string        `json:"resource_type"`
	Matched      bool          `json:"matched"`
	Rule         *CompiledRule `json:"rule,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"` // Effective User-Agent after the rule is applied
}

// ProbeResult is the outcome of sending a request with the effective User-Agent.
type ProbeResult struct {
	URL             string              `json:"url"`
	SentUserAgent   string              `json:"sent_user_agent"`
	MatchedRuleID   int                 `json:"matched_rule_id,omitempty"`
	StatusCode      int                 `json:"status_code"`
	ResponseHeaders map[string][]string `json:"response_headers"`
	ResponseBody    string              `json:"response_body"`
	DurationMs      int64               `json:"duration_ms"`
}
