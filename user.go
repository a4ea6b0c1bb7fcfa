package configcat

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// User attribute keys with dedicated, well-known semantics.
const (
	IdentifierAttr = "Identifier"
	EmailAttr      = "Email"
	CountryAttr    = "Country"
)

// UserValue is the tagged union of the value shapes a User attribute can
// hold. Concrete implementations are StringValue, IntValue, UIntValue,
// FloatValue, TimeValue, StringSliceValue and SemverValue.
type UserValue interface {
	isUserValue()
}

type StringValue string

func (StringValue) isUserValue() {}

type IntValue int64

func (IntValue) isUserValue() {}

type UIntValue uint64

func (UIntValue) isUserValue() {}

type FloatValue float64

func (FloatValue) isUserValue() {}

type TimeValue time.Time

func (TimeValue) isUserValue() {}

type StringSliceValue []string

func (StringSliceValue) isUserValue() {}

type SemverValue struct{ Version *semver.Version }

func (SemverValue) isUserValue() {}

// User is a bag of typed attributes used to evaluate targeting rules and
// percentage options.
type User struct {
	attributes map[string]UserValue
}

// NewUser creates a User with only the Identifier attribute set.
func NewUser(identifier string) *User {
	return &User{attributes: map[string]UserValue{IdentifierAttr: StringValue(identifier)}}
}

// WithEmail sets the Email attribute and returns the receiver for chaining.
func (u *User) WithEmail(email string) *User {
	u.attributes[EmailAttr] = StringValue(email)
	return u
}

// WithCountry sets the Country attribute and returns the receiver for
// chaining.
func (u *User) WithCountry(country string) *User {
	u.attributes[CountryAttr] = StringValue(country)
	return u
}

// WithAttribute sets a custom targeting attribute. The reserved
// Identifier/Email/Country keys are ignored here; use the dedicated
// setters for those.
func (u *User) WithAttribute(key string, value UserValue) *User {
	if key == IdentifierAttr || key == EmailAttr || key == CountryAttr {
		return u
	}
	u.attributes[key] = value
	return u
}

// Get returns the raw UserValue stored for key, or nil if absent.
func (u *User) Get(key string) UserValue {
	if u == nil {
		return nil
	}
	return u.attributes[key]
}

// asString coerces v to the canonical string form used by text-based
// comparators. The bool result reports whether a (logged) coercion
// occurred, i.e. v was not already a plain string.
func asString(v UserValue) (string, bool) {
	switch val := v.(type) {
	case StringValue:
		return string(val), false
	case FloatValue:
		return formatCanonicalFloat(float64(val)), true
	case IntValue:
		return strconv.FormatInt(int64(val), 10), true
	case UIntValue:
		return strconv.FormatUint(uint64(val), 10), true
	case SemverValue:
		if val.Version == nil {
			return "", true
		}
		return val.Version.String(), true
	case TimeValue:
		// DESIGN.md decision (d): same formatting rule as FloatValue, per
		// spec wording, not the simpler to-string the original used.
		seconds := float64(time.Time(val).UnixMilli()) / 1000.0
		return formatCanonicalFloat(seconds), true
	case StringSliceValue:
		b, err := json.Marshal([]string(val))
		if err != nil {
			return "", true
		}
		return string(b), true
	default:
		return "", true
	}
}

// formatCanonicalFloat implements the exact NaN/Infinity/decimal-range/
// scientific-notation rules: plain decimal for 1e-6 <= |v| < 1e21 (DESIGN.md
// decision (f)), scientific notation with an explicit sign otherwise.
func formatCanonicalFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	abs := math.Abs(v)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%+e", v)
}

// asFloat coerces v to a float64 for numeric/date comparators. Strings are
// parsed, accepting the special literals Infinity/+Infinity/-Infinity/NaN
// and a comma decimal separator.
func asFloat(v UserValue) (float64, bool) {
	switch val := v.(type) {
	case StringValue:
		trimmed := strings.TrimSpace(string(val))
		switch trimmed {
		case "Infinity", "+Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		case "NaN":
			return math.NaN(), true
		}
		f, err := strconv.ParseFloat(strings.Replace(trimmed, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case IntValue:
		return float64(val), true
	case UIntValue:
		return float64(val), true
	case FloatValue:
		return float64(val), true
	default:
		return 0, false
	}
}

// asTimestamp coerces v to a Unix-seconds float for date comparators.
func asTimestamp(v UserValue) (float64, bool) {
	if t, ok := v.(TimeValue); ok {
		return float64(time.Time(t).UnixMilli()) / 1000.0, true
	}
	return asFloat(v)
}

// asSemverValue coerces v to a parsed semver.Version for semver comparators.
func asSemverValue(v UserValue) (*semver.Version, bool) {
	switch val := v.(type) {
	case SemverValue:
		return val.Version, val.Version != nil
	case StringValue:
		parsed, err := parseSemver(string(val))
		if err != nil {
			return nil, false
		}
		return parsed, true
	default:
		return nil, false
	}
}

// asStringSlice coerces v to a []string for array-based comparators.
func asStringSlice(v UserValue) ([]string, bool) {
	switch val := v.(type) {
	case StringSliceValue:
		return []string(val), true
	case StringValue:
		var out []string
		if err := json.Unmarshal([]byte(val), &out); err != nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}
