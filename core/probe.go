package core

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"uaswitch/logger"
	"uaswitch/models"

	"github.com/andybalholm/brotli"
)

const maxProbeBody = 1 << 20

// defaultProbeUserAgent is sent when no rule matches.
const defaultProbeUserAgent = "uaswitch-probe/1.0"

type ProbeOptions struct {
	Timeout       time.Duration
	SkipTLSVerify bool
	Client        *http.Client // overrides Timeout and SkipTLSVerify when set
}

func (o ProbeOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	if o.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// MatchURL reports which rule would apply to rawURL for resourceType and the User-Agent it yields.
func MatchURL(rules []models.CompiledRule, rawURL, resourceType string) (models.RuleMatchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.RuleMatchResult{}, fmt.Errorf("invalid URL %q: must be absolute", rawURL)
	}
	if resourceType == "" {
		resourceType = models.ResourceMainFrame
	}
	if !models.IsResourceType(resourceType) {
		return models.RuleMatchResult{}, fmt.Errorf("unknown resource type %q", resourceType)
	}

	result := models.RuleMatchResult{URL: u.String(), ResourceType: resourceType}
	rule, ok := NewRuleMatcher(rules).Match(u, resourceType)
	if ok {
		result.Matched = true
		result.Rule = &rule
		result.UserAgent = EffectiveUserAgent(http.Header{}, rule)
	}
	return result, nil
}

// Probe sends a GET to rawURL with the User-Agent the active rules would produce and
// returns the decoded response.
func Probe(ctx context.Context, rules []models.CompiledRule, rawURL, resourceType string, opts ProbeOptions) (*models.ProbeResult, error) {
	match, err := MatchURL(rules, rawURL, resourceType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, match.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating probe request: %w", err)
	}
	req.Header.Set(models.UserAgentHeader, defaultProbeUserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	result := &models.ProbeResult{URL: match.URL}
	if match.Matched {
		ApplyRule(req.Header, *match.Rule)
		result.MatchedRuleID = match.Rule.ID
	}
	result.SentUserAgent = req.Header.Get(models.UserAgentHeader)

	start := time.Now()
	resp, err := opts.client().Do(req)
	if err != nil {
		logger.Error("Probe: request to %s failed: %v", match.URL, err)
		return nil, fmt.Errorf("sending probe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	result.DurationMs = time.Since(start).Milliseconds()
	result.StatusCode = resp.StatusCode
	result.ResponseHeaders = resp.Header
	result.ResponseBody = string(body)
	logger.Debug("Probe: %s -> %d (%d bytes, User-Agent %q)", match.URL, resp.StatusCode, len(body), result.SentUserAgent)
	return result, nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxProbeBody))
	if err != nil {
		return nil, fmt.Errorf("reading probe response body: %w", err)
	}
	return body, nil
}
