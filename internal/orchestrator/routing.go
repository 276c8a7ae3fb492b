package orchestrator

import (
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

// configMap is the fixed config-name alias table, preserved verbatim from
// the source this system was distilled from.
var configMap = map[string]string{
	"AdventureAbilityConfigList":             "AdventureAbilityConfigList",
	"TurnBasedAbilityConfigList":             "TurnBasedAbilityConfigList",
	"ChessAbilityConfigList":                 "ChessAbilityConfigList",
	"BattleLineupConfigList":                 "BattleLineupConfig",
	"BattleLineupAvatarConfigList":           "BattleLineupAvatarConfig",
	"BattleLineupMazeBuffConfigList":         "LineupMazeBuffConfig",
	"BattleLineupSkillTreePresetConfigList":  "SkillTreePointPresetConfig",
	"BattleLineupCEPresetConfigList":         "CEBattlePresetConfig",
	"LevelConfigList":                        "LevelGraphConfig",
	"GlobalModifierConfigList":               "GlobalModifierConfig",
	"AdventureModifierConfigList":            "AdventureModifierConfig",
	"ComplexSkillAIGlobalGroupConfigList":    "ComplexSkillAIGlobalGroupLookup",
	"GlobalTaskTemplateList":                 "GlobalTaskListTemplateConfig",
}

// ExtraConfigMap lets a deployment extend configMap with glob patterns
// (e.g. "NPCOverrideConfig/*") without a code change. Exact matches in
// configMap still win first, matching the source's plain dict lookup.
type ExtraConfigMap map[string]string

// resolveClassName applies the routing rules of spec.md §6 in order: the
// three basename/path special cases, then the alias table (exact match,
// then glob pattern, mirroring cmd-rpc.go's hasMatch precise-then-glob
// strategy), falling back to configName itself.
func resolveClassName(configName, item string, extra ExtraConfigMap) (className string, usedFallback bool) {
	base := item
	if idx := strings.LastIndex(item, "/"); idx >= 0 {
		base = item[idx+1:]
	}
	switch {
	case strings.HasPrefix(base, "MissionInfo"):
		return "MainMissionInfoConfig", false
	case strings.HasPrefix(base, "MunicipalChatConfig"):
		return "ConfigMunicipalNPCChatGroup", false
	case strings.Contains(item, "/NPCOverrideConfig/"):
		return "LevelNPCInfoOverride", false
	}

	if name, ok := configMap[configName]; ok {
		return name, false
	}
	if name, ok := hasMatch(configName, extra); ok {
		return name, false
	}
	return configName, true
}

// hasMatch finds the alias whose key precisely or glob-matches configName,
// preferring a precise match over any glob match, and among glob matches
// preferring the shortest pattern (cmd-rpc.go's hasMatch tie-break).
func hasMatch(configName string, extra ExtraConfigMap) (string, bool) {
	if len(extra) == 0 {
		return "", false
	}
	patterns := make([]string, 0, len(extra))
	for k := range extra {
		patterns = append(patterns, k)
	}
	// sort the patterns in increasing length order:
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) < len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	for _, p := range patterns {
		if p == configName {
			return extra[p], true
		}
	}
	for _, p := range patterns {
		if glob.Glob(p, configName) {
			return extra[p], true
		}
	}
	return "", false
}

// excelCandidates returns the ordered list of logical names to try for an
// excel table's binary reader, per spec.md §6's fallback cascade.
func excelCandidates(baseClass string) []string {
	candidates := []string{
		"BakedConfig/ExcelOutput/" + baseClass + ".bytes",
		"BakedConfig/ExcelOutputGameCore/" + baseClass + ".bytes",
	}
	switch {
	case strings.HasSuffix(baseClass, "Config"):
		stripped := baseClass[:len(baseClass)-len("Config")]
		candidates = append(candidates,
			"BakedConfig/ExcelOutput/"+stripped+".bytes",
			"BakedConfig/ExcelOutputGameCore/"+stripped+".bytes",
		)
	default:
		candidates = append(candidates,
			"BakedConfig/ExcelOutput/"+baseClass+"Config.bytes",
			"BakedConfig/ExcelOutputGameCore/"+baseClass+"Config.bytes",
		)
	}
	return candidates
}
