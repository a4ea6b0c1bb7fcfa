package configcat

import (
	"math"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserSetsIdentifier(t *testing.T) {
	u := NewUser("user-1")
	s, coerced := asString(u.Get(IdentifierAttr))
	assert.False(t, coerced)
	assert.Equal(t, "user-1", s)
}

func TestUserWithEmailAndCountry(t *testing.T) {
	u := NewUser("user-1").WithEmail("a@b.com").WithCountry("US")
	s, _ := asString(u.Get(EmailAttr))
	assert.Equal(t, "a@b.com", s)
	s, _ = asString(u.Get(CountryAttr))
	assert.Equal(t, "US", s)
}

func TestWithAttributeIgnoresReservedKeys(t *testing.T) {
	u := NewUser("user-1")
	u.WithAttribute(IdentifierAttr, StringValue("overwritten"))
	s, _ := asString(u.Get(IdentifierAttr))
	assert.Equal(t, "user-1", s)
}

func TestGetOnNilUser(t *testing.T) {
	var u *User
	assert.Nil(t, u.Get(IdentifierAttr))
}

func TestAsStringCoercions(t *testing.T) {
	cases := []struct {
		name    string
		value   UserValue
		want    string
		coerced bool
	}{
		{"string", StringValue("abc"), "abc", false},
		{"int", IntValue(42), "42", true},
		{"uint", UIntValue(42), "42", true},
		{"float", FloatValue(3.5), "3.5", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, coerced := asString(c.value)
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.coerced, coerced)
		})
	}
}

func TestFormatCanonicalFloatPlainRange(t *testing.T) {
	assert.Equal(t, "1", formatCanonicalFloat(1))
	assert.Equal(t, "0.000001", formatCanonicalFloat(1e-6))
	assert.Equal(t, "123.456", formatCanonicalFloat(123.456))
}

func TestFormatCanonicalFloatSpecialValues(t *testing.T) {
	assert.Equal(t, "NaN", formatCanonicalFloat(math.NaN()))
	assert.Equal(t, "Infinity", formatCanonicalFloat(math.Inf(1)))
	assert.Equal(t, "-Infinity", formatCanonicalFloat(math.Inf(-1)))
}

func TestFormatCanonicalFloatScientificNotationHasNoDoubleSign(t *testing.T) {
	out := formatCanonicalFloat(1e21)
	assert.NotContains(t, out, "++")
	assert.NotContains(t, out, "--")
	assert.Contains(t, out, "e+")
}

func TestAsFloatStringSpecialLiterals(t *testing.T) {
	f, ok := asFloat(StringValue("Infinity"))
	require.True(t, ok)
	assert.True(t, math.IsInf(f, 1))

	f, ok = asFloat(StringValue("-Infinity"))
	require.True(t, ok)
	assert.True(t, math.IsInf(f, -1))

	_, ok = asFloat(StringValue("not-a-number"))
	assert.False(t, ok)
}

func TestAsFloatCommaDecimalSeparator(t *testing.T) {
	f, ok := asFloat(StringValue("1,5"))
	require.True(t, ok)
	assert.Equal(t, 1.5, f)
}

func TestAsTimestampFromTimeValue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts, ok := asTimestamp(TimeValue(now))
	require.True(t, ok)
	assert.Equal(t, float64(now.UnixMilli())/1000.0, ts)
}

func TestAsSemverValueFromString(t *testing.T) {
	v, ok := asSemverValue(StringValue("1.2.3"))
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v.String())
}

func TestAsSemverValueFromSemverValue(t *testing.T) {
	ver, err := semver.NewVersion("2.0.0")
	require.NoError(t, err)
	v, ok := asSemverValue(SemverValue{Version: ver})
	require.True(t, ok)
	assert.Equal(t, "2.0.0", v.String())
}

func TestAsStringSliceFromStringSliceValue(t *testing.T) {
	s, ok := asStringSlice(StringSliceValue{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s)
}

func TestAsStringSliceFromJSONString(t *testing.T) {
	s, ok := asStringSlice(StringValue(`["a","b"]`))
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s)
}
