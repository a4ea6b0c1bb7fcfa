package configcat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigBasicBoolSetting(t *testing.T) {
	raw := []byte(`{"f":{"flag":{"t":0,"v":{"b":true}}},"s":[]}`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	require.Contains(t, cfg.Settings, "flag")
	assert.Equal(t, BoolSetting, cfg.Settings["flag"].Type)
	assert.True(t, *cfg.Settings["flag"].Value.BoolValue)
}

func TestParseConfigPropagatesSaltToSettings(t *testing.T) {
	raw := []byte(`{"p":{"s":"the-salt"},"f":{"flag":{"t":0,"v":{"b":true}}},"s":[]}`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, "the-salt", cfg.Settings["flag"].Salt)
}

func TestParseConfigResolvesSegmentIndex(t *testing.T) {
	raw := []byte(`{
		"s":[{"n":"beta users","r":[{"a":"Email","c":28,"s":"a@b.com"}]}],
		"f":{"flag":{"t":0,"v":{"b":false},
			"r":[{"c":[{"s":{"s":0,"c":0}}],"s":{"v":{"b":true}}}]}}
	}`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	rule := cfg.Settings["flag"].TargetingRules[0]
	seg := rule.Conditions[0].SegmentCondition.relatedSegment
	require.NotNil(t, seg)
	assert.Equal(t, "beta users", seg.Name)
}

func TestParseConfigInvalidJSON(t *testing.T) {
	_, err := ParseConfig([]byte(`not json`))
	assert.Error(t, err)
}

func TestSettingValueAsTyped(t *testing.T) {
	v := &SettingValue{BoolValue: boolPtr(true), StringValue: strPtr("s"), IntValue: intPtr(3), DoubleValue: f64Ptr(1.5)}
	b, err := v.asTyped(BoolSetting)
	require.NoError(t, err)
	assert.Equal(t, true, b)

	s, err := v.asTyped(StringSetting)
	require.NoError(t, err)
	assert.Equal(t, "s", s)

	i, err := v.asTyped(IntSetting)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	d, err := v.asTyped(FloatSetting)
	require.NoError(t, err)
	assert.Equal(t, 1.5, d)
}

func TestSettingValueAsTypedReportsMismatchWhenFieldUnset(t *testing.T) {
	// Only "s" is populated in the JSON even though the setting is declared
	// Bool: the JSON decoder leaves BoolValue nil rather than defaulting it
	// to false, so asTyped must report a mismatch instead of silently
	// returning the Go zero value.
	cfg, err := ParseConfig([]byte(`{"f":{"flag":{"t":0,"v":{"s":"oops"}}},"s":[]}`))
	require.NoError(t, err)

	_, convErr := cfg.Settings["flag"].Value.asTyped(BoolSetting)
	require.Error(t, convErr)
}

func TestComparatorHelperPredicates(t *testing.T) {
	assert.True(t, OpOneOfHashed.IsSensitive())
	assert.False(t, OpOneOf.IsSensitive())
	assert.True(t, OpOneOf.IsList())
	assert.True(t, OpEqNum.IsNumeric())
	assert.True(t, OpBeforeDateTime.IsDateTime())
	assert.True(t, OpLessSemver.isSemver())
}
