package core

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"uaswitch/models"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchURL(t *testing.T) {
	rules := CompileRules(models.Settings{
		Enabled:   true,
		Mode:      models.ModePerSite,
		SiteRules: []models.SiteRule{{Domain: "a.com", UserAgent: "UA1"}},
	})

	result, err := MatchURL(rules, "https://www.a.com/x", "")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, models.ResourceMainFrame, result.ResourceType)
	assert.Equal(t, "UA1", result.UserAgent)
	require.NotNil(t, result.Rule)
	assert.Equal(t, 1, result.Rule.ID)

	result, err = MatchURL(rules, "https://b.com/", models.ResourceImage)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Rule)

	_, err = MatchURL(rules, "a.com/no-scheme", "")
	assert.Error(t, err)
	_, err = MatchURL(rules, "https://a.com/", "beacon")
	assert.Error(t, err)
}

func TestProbe_SendsEffectiveUserAgent(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("plain body"))
	}))
	defer upstream.Close()

	rules := CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "Probe/1.0"})
	result, err := Probe(context.Background(), rules, upstream.URL, "", ProbeOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "Probe/1.0", got)
	assert.Equal(t, "Probe/1.0", result.SentUserAgent)
	assert.Equal(t, 1, result.MatchedRuleID)
	assert.Equal(t, http.StatusTeapot, result.StatusCode)
	assert.Equal(t, "yes", http.Header(result.ResponseHeaders).Get("X-Test"))
	assert.Equal(t, "plain body", result.ResponseBody)
}

func TestProbe_DefaultUserAgentWithoutRules(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer upstream.Close()

	result, err := Probe(context.Background(), nil, upstream.URL, "", ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, defaultProbeUserAgent, got)
	assert.Zero(t, result.MatchedRuleID)
}

func TestProbe_DecodesCompressedBodies(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("gzipped"))
	require.NoError(t, zw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte("brotli"))
	require.NoError(t, bw.Close())

	bodies := map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := r.URL.Query().Get("enc")
		w.Header().Set("Content-Encoding", enc)
		w.Write(bodies[enc])
	}))
	defer upstream.Close()

	for enc, want := range map[string]string{"gzip": "gzipped", "br": "brotli"} {
		t.Run(enc, func(t *testing.T) {
			result, err := Probe(context.Background(), nil, upstream.URL+"/?enc="+enc, "", ProbeOptions{})
			require.NoError(t, err)
			assert.Equal(t, want, result.ResponseBody)
		})
	}
}

func TestProbe_RejectsRelativeURL(t *testing.T) {
	_, err := Probe(context.Background(), nil, "/relative", "", ProbeOptions{})
	assert.Error(t, err)
}
