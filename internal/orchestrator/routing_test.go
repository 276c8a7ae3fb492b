package orchestrator

import "testing"

func TestResolveClassNameSpecialCasesWinOverConfigMap(t *testing.T) {
	cases := []struct {
		item string
		want string
	}{
		{"Foo/MissionInfo_1001.json", "MainMissionInfoConfig"},
		{"Bar/MunicipalChatConfig_2.json", "ConfigMunicipalNPCChatGroup"},
		{"Level1/NPCOverrideConfig/override.json", "LevelNPCInfoOverride"},
	}
	for _, c := range cases {
		got, fallback := resolveClassName("LevelConfigList", c.item, nil)
		if got != c.want {
			t.Errorf("resolveClassName(%q) = %q, want %q", c.item, got, c.want)
		}
		if fallback {
			t.Errorf("resolveClassName(%q): unexpected fallback", c.item)
		}
	}
}

func TestResolveClassNameConfigMapLookup(t *testing.T) {
	got, fallback := resolveClassName("LevelConfigList", "Level/Foo.json", nil)
	if got != "LevelGraphConfig" || fallback {
		t.Errorf("got %q fallback=%v, want LevelGraphConfig/false", got, fallback)
	}
}

func TestResolveClassNameFallsBackToConfigName(t *testing.T) {
	got, fallback := resolveClassName("SomeUnknownConfigList", "x/y.json", nil)
	if got != "SomeUnknownConfigList" || !fallback {
		t.Errorf("got %q fallback=%v, want SomeUnknownConfigList/true", got, fallback)
	}
}

func TestResolveClassNameExtraGlobPattern(t *testing.T) {
	extra := ExtraConfigMap{"NPC*": "NPCResolvedConfig"}
	got, fallback := resolveClassName("NPCFooConfigList", "x/y.json", extra)
	if got != "NPCResolvedConfig" || fallback {
		t.Errorf("got %q fallback=%v, want NPCResolvedConfig/false", got, fallback)
	}
}

func TestResolveClassNameExtraExactBeatsGlob(t *testing.T) {
	extra := ExtraConfigMap{"NPC*": "Wrong", "NPCFooConfigList": "Right"}
	got, _ := resolveClassName("NPCFooConfigList", "x/y.json", extra)
	if got != "Right" {
		t.Errorf("got %q, want Right (exact match must win over glob)", got)
	}
}

func TestExcelCandidatesConfigSuffix(t *testing.T) {
	got := excelCandidates("FooConfig")
	want := []string{
		"BakedConfig/ExcelOutput/FooConfig.bytes",
		"BakedConfig/ExcelOutputGameCore/FooConfig.bytes",
		"BakedConfig/ExcelOutput/Foo.bytes",
		"BakedConfig/ExcelOutputGameCore/Foo.bytes",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExcelCandidatesNoSuffix(t *testing.T) {
	got := excelCandidates("Foo")
	want := []string{
		"BakedConfig/ExcelOutput/Foo.bytes",
		"BakedConfig/ExcelOutputGameCore/Foo.bytes",
		"BakedConfig/ExcelOutput/FooConfig.bytes",
		"BakedConfig/ExcelOutputGameCore/FooConfig.bytes",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}
