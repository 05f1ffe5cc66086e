package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecompilesTotal.WithLabelValues("manual", "ok").Inc()
	m.ActiveRules.Set(3)
	m.SettingsChanges.Add(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `uaswitch_recompiles_total{result="ok",trigger="manual"} 1`)
	assert.Contains(t, string(body), "uaswitch_active_rules 3")
	assert.Contains(t, string(body), "uaswitch_settings_changes_total 2")
}

func TestGetReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
