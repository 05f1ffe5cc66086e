package core

import (
	"testing"
	"uaswitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRules_GlobalModeUsesDefaultExclusions(t *testing.T) {
	rules := CompileRules(models.Settings{
		Enabled:         true,
		Mode:            models.ModeAll,
		UserAgent:       "X",
		ExcludedDomains: []string{},
	})

	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, RuleIDBase, r.ID)
	assert.Equal(t, 1, r.Priority)
	assert.Equal(t, models.URLFilterAll, r.Condition.URLFilter)
	assert.Equal(t, models.DefaultExcludedDomains, r.Condition.ExcludedRequestDomains)
	assert.Equal(t, models.AllResourceTypes, r.Condition.ResourceTypes)
	assert.Equal(t, models.ActionModifyHeaders, r.Action.Type)
	assert.Equal(t, []models.HeaderModification{
		{Header: "User-Agent", Operation: "set", Value: "X"},
	}, r.Action.RequestHeaders)
}

func TestCompileRules_GlobalModeUsesConfiguredExclusions(t *testing.T) {
	rules := CompileRules(models.Settings{
		Enabled:         true,
		Mode:            models.ModeAll,
		UserAgent:       "X",
		ExcludedDomains: []string{"internal.example"},
	})

	require.Len(t, rules, 1)
	assert.Equal(t, []string{"internal.example"}, rules[0].Condition.ExcludedRequestDomains)
}

func TestCompileRules_PerSiteSkipsIncompleteRows(t *testing.T) {
	rules := CompileRules(models.Settings{
		Enabled: true,
		Mode:    models.ModePerSite,
		SiteRules: []models.SiteRule{
			{Domain: "a.com", UserAgent: "UA1"},
			{Domain: "", UserAgent: "UA2"},
		},
	})

	require.Len(t, rules, 1)
	assert.Equal(t, "||a.com", rules[0].Condition.URLFilter)
	assert.Equal(t, "UA1", rules[0].Action.RequestHeaders[0].Value)
	assert.Empty(t, rules[0].Condition.ExcludedRequestDomains)
}

func TestCompileRules_PerSiteIDsFollowInputPosition(t *testing.T) {
	rules := CompileRules(models.Settings{
		Enabled:         true,
		Mode:            models.ModePerSite,
		UserAgent:       "ignored",
		ExcludedDomains: []string{"b.com"},
		SiteRules: []models.SiteRule{
			{Domain: "a.com", UserAgent: "UA1"},
			{Domain: "skipped.com", UserAgent: ""},
			{Domain: "b.com", UserAgent: "UA3"},
		},
	})

	require.Len(t, rules, 2)
	assert.Equal(t, RuleIDBase+0, rules[0].ID)
	assert.Equal(t, RuleIDBase+2, rules[1].ID)
	assert.Equal(t, "||b.com", rules[1].Condition.URLFilter)
	assert.Empty(t, rules[1].Condition.ExcludedRequestDomains, "per-site rules ignore the exclusion list")
}

func TestCompileRules_ProducesNothing(t *testing.T) {
	tcs := map[string]models.Settings{
		"disabled with everything else set": {
			Enabled:   false,
			Mode:      models.ModeAll,
			UserAgent: "X",
			SiteRules: []models.SiteRule{{Domain: "a.com", UserAgent: "UA1"}},
		},
		"disabled per-site": {
			Enabled:   false,
			Mode:      models.ModePerSite,
			SiteRules: []models.SiteRule{{Domain: "a.com", UserAgent: "UA1"}},
		},
		"global mode without user agent": {
			Enabled: true,
			Mode:    models.ModeAll,
		},
		"per-site mode without rules": {
			Enabled:   true,
			Mode:      models.ModePerSite,
			UserAgent: "X",
		},
		"unknown mode": {
			Enabled:   true,
			Mode:      models.Mode("sometimes"),
			UserAgent: "X",
		},
	}

	for name, s := range tcs {
		t.Run(name, func(t *testing.T) {
			rules := CompileRules(s)
			require.NotNil(t, rules)
			assert.Empty(t, rules)
		})
	}
}

func TestCompileRules_IsDeterministic(t *testing.T) {
	s := models.Settings{
		Enabled: true,
		Mode:    models.ModePerSite,
		SiteRules: []models.SiteRule{
			{Domain: "a.com", UserAgent: "UA1"},
			{Domain: "b.com", UserAgent: "UA2"},
		},
	}
	assert.Equal(t, CompileRules(s), CompileRules(s))
}

func TestCompileRules_DoesNotAliasDefaults(t *testing.T) {
	rules := CompileRules(models.Settings{Enabled: true, Mode: models.ModeAll, UserAgent: "X"})
	require.Len(t, rules, 1)

	rules[0].Condition.ExcludedRequestDomains[0] = "mutated.example"
	rules[0].Condition.ResourceTypes[0] = "mutated"

	assert.Equal(t, "chatgpt.com", models.DefaultExcludedDomains[0])
	assert.Equal(t, models.ResourceMainFrame, models.AllResourceTypes[0])
}
