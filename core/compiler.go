package core

import (
	"uaswitch/models"
)

// RuleIDBase is the id of the global rule; per-site rules use RuleIDBase+index.
const RuleIDBase = 1

const rulePriority = 1

func userAgentAction(ua string) models.RuleAction {
	return models.RuleAction{
		Type: models.ActionModifyHeaders,
		RequestHeaders: []models.HeaderModification{
			{
				Header:    models.UserAgentHeader,
				Operation: models.HeaderOperationSet,
				Value:     ua,
			},
		},
	}
}

func allResourceTypes() []string {
	types := make([]string, len(models.AllResourceTypes))
	copy(types, models.AllResourceTypes)
	return types
}

// CompileRules translates settings into the rule list to install. It has no side effects.
//
// Disabled settings compile to nothing. In "all" mode a single wildcard rule carries the
// resolved excluded domains; an empty global User-Agent compiles to nothing. In "perSite"
// mode each complete site rule becomes a domain-anchored rule with no exclusions, and
// rule ids follow the input position so skipped entries leave gaps.
func CompileRules(settings models.Settings) []models.CompiledRule {
	rules := []models.CompiledRule{}
	if !settings.Enabled {
		return rules
	}

	switch settings.Mode {
	case models.ModeAll:
		if settings.UserAgent == "" {
			return rules
		}
		excluded := settings.ResolvedExcludedDomains()
		condition := models.RuleCondition{
			URLFilter:     models.URLFilterAll,
			ResourceTypes: allResourceTypes(),
		}
		if len(excluded) > 0 {
			condition.ExcludedRequestDomains = append([]string(nil), excluded...)
		}
		rules = append(rules, models.CompiledRule{
			ID:        RuleIDBase,
			Priority:  rulePriority,
			Action:    userAgentAction(settings.UserAgent),
			Condition: condition,
		})

	case models.ModePerSite:
		for i, site := range settings.SiteRules {
			if !site.Complete() {
				continue
			}
			rules = append(rules, models.CompiledRule{
				ID:       RuleIDBase + i,
				Priority: rulePriority,
				Action:   userAgentAction(site.UserAgent),
				Condition: models.RuleCondition{
					URLFilter:     "||" + site.Domain,
					ResourceTypes: allResourceTypes(),
				},
			})
		}
	}
	return rules
}
