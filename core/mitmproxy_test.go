package core

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"uaswitch/metrics"
	"uaswitch/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules struct {
	mu         sync.Mutex
	rules      []models.CompiledRule
	generation uint64
}

func (s *staticRules) Snapshot() ([]models.CompiledRule, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules, s.generation
}

func (s *staticRules) set(rules []models.CompiledRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
	s.generation++
}

func userAgentEcho() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("User-Agent"))
	}
}

func proxiedClient(t *testing.T, proxyURL string, tlsConfig *tls.Config) *http.Client {
	t.Helper()
	u, err := url.Parse(proxyURL)
	require.NoError(t, err)
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(u), TLSClientConfig: tlsConfig}}
}

func fetchUA(t *testing.T, client *http.Client, target string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "original/1.0")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewRewriteProxy_MITMRequiresCA(t *testing.T) {
	_, err := NewRewriteProxy(&staticRules{}, ProxyOptions{MITM: true})
	assert.Error(t, err)
}

func TestRewriteProxy_HTTP(t *testing.T) {
	upstream := httptest.NewServer(userAgentEcho())
	defer upstream.Close()

	rules := &staticRules{}
	m := metrics.New()
	p, err := NewRewriteProxy(rules, ProxyOptions{Metrics: m})
	require.NoError(t, err)
	proxy := httptest.NewServer(p)
	defer proxy.Close()
	client := proxiedClient(t, proxy.URL, nil)

	assert.Equal(t, "original/1.0", fetchUA(t, client, upstream.URL), "no rules installed")

	rules.set(CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "Rewritten/2.0"}))
	assert.Equal(t, "Rewritten/2.0", fetchUA(t, client, upstream.URL+"/page"))

	rules.set(CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "Rewritten/2.0", ExcludedDomains: []string{"127.0.0.1"}}))
	assert.Equal(t, "original/1.0", fetchUA(t, client, upstream.URL), "excluded host is untouched")

	rules.set(CompileRules(models.Settings{
		Enabled:   true,
		Mode:      models.ModePerSite,
		SiteRules: []models.SiteRule{{Domain: "127.0.0.1", UserAgent: "PerSite/3.0"}},
	}))
	assert.Equal(t, "PerSite/3.0", fetchUA(t, client, upstream.URL))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProxyRequests.WithLabelValues("unmatched", models.ResourceOther)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProxyRequests.WithLabelValues("rewritten", models.ResourceOther)))
}

func TestRewriteProxy_MITM(t *testing.T) {
	upstream := httptest.NewTLSServer(userAgentEcho())
	defer upstream.Close()

	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.crt")
	keyPath := filepath.Join(dir, "ca.key")
	require.NoError(t, GenerateAndSaveCA(certPath, keyPath))
	ca, err := LoadCA(certPath, keyPath)
	require.NoError(t, err)

	rules := &staticRules{}
	rules.set(CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "Secure/1.0"}))
	p, err := NewRewriteProxy(rules, ProxyOptions{MITM: true, CA: &ca, Metrics: metrics.New()})
	require.NoError(t, err)
	proxy := httptest.NewServer(p)
	defer proxy.Close()

	pool := x509.NewCertPool()
	pool.AddCert(ca.Leaf)
	client := proxiedClient(t, proxy.URL, &tls.Config{RootCAs: pool})

	assert.Equal(t, "Secure/1.0", fetchUA(t, client, upstream.URL))
}

func TestRewriteProxy_RewriteUsesFetchMetadata(t *testing.T) {
	onlyScripts := CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "X"})
	onlyScripts[0].Condition.ResourceTypes = []string{models.ResourceScript}
	p, err := NewRewriteProxy(&staticRules{rules: onlyScripts, generation: 1}, ProxyOptions{Metrics: metrics.New()})
	require.NoError(t, err)

	doc := httptest.NewRequest(http.MethodGet, "http://a.com/", nil)
	doc.Header.Set("Sec-Fetch-Dest", "document")
	_, ok := p.Rewrite(doc)
	assert.False(t, ok)

	script := httptest.NewRequest(http.MethodGet, "http://a.com/app.js", nil)
	script.Header.Set("Sec-Fetch-Dest", "script")
	rule, ok := p.Rewrite(script)
	require.True(t, ok)
	assert.Equal(t, 1, rule.ID)
	assert.Equal(t, "X", script.Header.Get("User-Agent"))
}
