package prefs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testGlobal() Global {
	return Global{
		Settings: Settings{
			APIKey:            "key123",
			SkipCountTracking: true,
			MuteAds:           false,
			SkipAds:           true,
			MinimumSkipLength: 2,
			AutoPlay:          true,
			JoinName:          "lounge",
		},
		SkipCategories:   []string{"sponsor", "intro"},
		ChannelWhitelist: []Channel{{ID: "UC1", Name: "One"}},
	}
}

func TestResolve_NoOverrides_ProjectsGlobal(t *testing.T) {
	global := testGlobal()
	p := Resolve(global, Overrides{})

	require.Equal(t, global.APIKey, p.APIKey)
	require.Equal(t, global.JoinName, p.JoinName)
	require.Equal(t, global.SkipCountTracking, p.SkipCountTracking)
	require.Equal(t, global.MuteAds, p.MuteAds)
	require.Equal(t, global.SkipAds, p.SkipAds)
	require.Equal(t, global.AutoPlay, p.AutoPlay)
	require.Equal(t, global.MinimumSkipLength, p.MinimumSkipLength)
	require.Equal(t, global.SkipCategories, p.SkipCategories)
	require.Equal(t, global.ChannelWhitelist, p.ChannelWhitelist)
}

func TestResolve_NilSkipCategoriesInherits(t *testing.T) {
	p := Resolve(testGlobal(), Overrides{SkipCategories: nil})
	require.Equal(t, []string{"sponsor", "intro"}, p.SkipCategories)
}

func TestResolve_EmptySkipCategoriesIsExplicitEmpty(t *testing.T) {
	p := Resolve(testGlobal(), Overrides{SkipCategories: []string{}})
	require.Empty(t, p.SkipCategories)
}

func TestResolve_AutomationOverridesMaskGlobal(t *testing.T) {
	p := Resolve(testGlobal(), Overrides{Automation: map[string]bool{
		"skip_ads": false,
		"mute_ads": true,
	}})
	require.False(t, p.SkipAds)
	require.True(t, p.MuteAds)
	// Untouched flags keep their global values.
	require.True(t, p.SkipCountTracking)
	require.True(t, p.AutoPlay)
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	global := testGlobal()
	overrides := Overrides{SkipCategories: []string{"outro"}}
	p := Resolve(global, overrides)

	p.SkipCategories[0] = "mutated"
	require.Equal(t, []string{"outro"}, overrides.SkipCategories)
	require.Equal(t, []string{"sponsor", "intro"}, global.SkipCategories)
}

func TestChannelWhitelisted(t *testing.T) {
	p := Resolve(testGlobal(), Overrides{})
	require.True(t, p.ChannelWhitelisted("UC1"))
	require.False(t, p.ChannelWhitelisted("UC2"))
	require.False(t, p.ChannelWhitelisted(""))
}

func TestMergeOverrides_NullPayloadClearsAll(t *testing.T) {
	existing := Overrides{
		Automation:     map[string]bool{"skip_ads": true},
		SkipCategories: []string{"sponsor"},
	}
	merged, err := MergeOverrides(existing, nil, true)
	require.NoError(t, err)
	require.True(t, merged.IsZero())
}

func TestMergeOverrides_NullKeyClearsOverride(t *testing.T) {
	existing := Overrides{SkipCategories: []string{"sponsor"}}
	merged, err := MergeOverrides(existing, map[string]any{"skip_categories": nil}, false)
	require.NoError(t, err)
	require.Nil(t, merged.SkipCategories)
}

func TestMergeOverrides_UnknownAutomationKeyDropped(t *testing.T) {
	merged, err := MergeOverrides(Overrides{}, map[string]any{
		"automation": map[string]any{"skip_ads": true, "bogus": true},
	}, false)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"skip_ads": true}, merged.Automation)
}

func TestMergeOverrides_InvalidCategoryErrors(t *testing.T) {
	_, err := MergeOverrides(Overrides{}, map[string]any{
		"skip_categories": []any{"sponsor", "not_a_category"},
	}, false)
	require.Error(t, err)
}

func TestMergeOverrides_PreservesUntouchedFields(t *testing.T) {
	existing := Overrides{
		Automation:     map[string]bool{"mute_ads": true},
		SkipCategories: []string{"intro"},
	}
	merged, err := MergeOverrides(existing, map[string]any{
		"channel_whitelist": []any{"UC9"},
	}, false)
	require.NoError(t, err)
	require.Equal(t, existing.Automation, merged.Automation)
	require.Equal(t, existing.SkipCategories, merged.SkipCategories)
	require.Equal(t, []Channel{{ID: "UC9", Name: "UC9"}}, merged.ChannelWhitelist)
}

func TestOverrides_EncodeParseRoundTrip(t *testing.T) {
	original := Overrides{
		Automation:       map[string]bool{"auto_play": false},
		SkipCategories:   []string{"sponsor", "outro"},
		ChannelWhitelist: []Channel{{ID: "UC1", Name: "One"}},
	}
	parsed := ParseStored(original.Encode())
	require.True(t, original.Equal(parsed))
}

func TestOverrides_EqualDistinguishesNilFromEmpty(t *testing.T) {
	a := Overrides{SkipCategories: nil}
	b := Overrides{SkipCategories: []string{}}
	require.False(t, a.Equal(b))
	require.True(t, a.Equal(Overrides{}))
}

func TestParseStored_GarbageDegradesToNoOverride(t *testing.T) {
	require.True(t, ParseStored("not json").IsZero())
	require.True(t, ParseStored("").IsZero())
}
