package models

// ErrorResponse is a generic error response structure for API
type ErrorResponse struct {
	Message string `json:"message" example:"Error message describing the issue"`
}

// PresetCreateRequest is the body accepted when saving a custom preset.
type PresetCreateRequest struct {
	Name      string `json:"name" example:"Safari on iPhone"`
	UserAgent string `json:"userAgent"`
}

// RuleMatchRequest asks which rule would apply to a URL.
type RuleMatchRequest struct {
	URL          string `json:"url" example:"https://www.example.com/"`
	ResourceType string `json:"resourceType,omitempty" example:"main_frame"`
}

// ProbeRequest asks the server to fetch a URL with the effective User-Agent.
type ProbeRequest struct {
	URL          string `json:"url" example:"https://httpbin.org/user-agent"`
	ResourceType string `json:"resourceType,omitempty"`
}
