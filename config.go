package configcat

import (
	"encoding/json"
	"fmt"
)

// Config is the parsed form of a ConfigCat-style config document: the
// feature flag/setting definitions plus the segments and data-governance
// preferences referenced by them.
type Config struct {
	Settings    map[string]*Setting `json:"f"`
	Segments    []*Segment          `json:"s"`
	Preferences *Preferences        `json:"p"`
}

// Setting holds the full evaluation metadata of one feature flag or
// setting: its default value, type, targeting rules and percentage
// options.
type Setting struct {
	PercentageOptionsAttribute string              `json:"a"`
	VariationID                string              `json:"i"`
	Value                      *SettingValue       `json:"v"`
	Type                       SettingType         `json:"t"`
	TargetingRules             []*TargetingRule    `json:"r"`
	PercentageOptions          []*PercentageOption `json:"p"`

	// Salt is propagated from Preferences.Salt by postProcessConfig; it
	// participates in every sensitive comparator's hash input for this
	// setting.
	Salt string `json:"-"`
}

// TargetingRule is one "IF ... THEN ..." rule: an AND of Conditions gating
// either a single ServedValue or a nested list of PercentageOptions.
type TargetingRule struct {
	ServedValue       *ServedValue        `json:"s"`
	Conditions        []*Condition        `json:"c"`
	PercentageOptions []*PercentageOption `json:"p"`
}

// ServedValue is the value returned when a TargetingRule's conditions all
// match and the rule has no nested percentage options.
type ServedValue struct {
	Value       *SettingValue `json:"v"`
	VariationID string        `json:"i"`
}

// PercentageOption is one slice of a percentage-rollout list.
type PercentageOption struct {
	Value       *SettingValue `json:"v"`
	Percentage  int64         `json:"p"`
	VariationID string        `json:"i"`
}

// Segment is a reusable, named set of user conditions that targeting rules
// can reference by index via SegmentCondition.
type Segment struct {
	Name       string           `json:"n"`
	Conditions []*UserCondition `json:"r"`
}

// Condition is a discriminated union: exactly one of UserCondition,
// SegmentCondition, or PrerequisiteFlagCondition is non-nil.
type Condition struct {
	UserCondition             *UserCondition             `json:"u"`
	SegmentCondition          *SegmentCondition          `json:"s"`
	PrerequisiteFlagCondition *PrerequisiteFlagCondition `json:"p"`
}

// UserCondition compares a single User attribute against a comparison
// value using Comparator.
type UserCondition struct {
	ComparisonAttribute string     `json:"a"`
	StringValue         *string    `json:"s"`
	DoubleValue         *float64   `json:"d"`
	StringArrayValue    []string   `json:"l"`
	Comparator          Comparator `json:"c"`
}

// SegmentCondition evaluates whether the user matches (or doesn't match)
// the referenced segment.
type SegmentCondition struct {
	Index      int               `json:"s"`
	Comparator SegmentComparator `json:"c"`

	// relatedSegment is resolved by postProcessConfig; nil means the index
	// was out of range or no segments were present, which the evaluator
	// treats as a fatal configuration error.
	relatedSegment *Segment
}

// PrerequisiteFlagCondition compares the evaluated value of another
// feature flag in the same config against Value.
type PrerequisiteFlagCondition struct {
	FlagKey    string                 `json:"f"`
	Comparator PrerequisiteComparator `json:"c"`
	Value      *SettingValue          `json:"v"`
}

// SettingValue is the tagged union of the four setting value shapes; only
// the field matching the owning Setting's Type is meaningful. The fields
// are pointers so asTyped can tell "the JSON never populated this field"
// (nil) apart from "the JSON populated it with the Go zero value" (false,
// "", 0, 0.0); a served value whose type doesn't match its declared
// SettingType is a type-mismatch error, not a silent zero value.
type SettingValue struct {
	BoolValue   *bool    `json:"b"`
	StringValue *string  `json:"s"`
	IntValue    *int     `json:"i"`
	DoubleValue *float64 `json:"d"`
}

// errSettingValueTypeMismatch is returned by asTyped when the field for
// the requested SettingType was never populated in the JSON.
var errSettingValueTypeMismatch = fmt.Errorf("setting value is missing or invalid")

// asTyped extracts the value matching t, or reports an error if the
// setting's declared type has no populated value.
func (v *SettingValue) asTyped(t SettingType) (any, error) {
	if v == nil {
		return nil, errSettingValueTypeMismatch
	}
	switch t {
	case BoolSetting:
		if v.BoolValue == nil {
			return nil, errSettingValueTypeMismatch
		}
		return *v.BoolValue, nil
	case StringSetting:
		if v.StringValue == nil {
			return nil, errSettingValueTypeMismatch
		}
		return *v.StringValue, nil
	case IntSetting:
		if v.IntValue == nil {
			return nil, errSettingValueTypeMismatch
		}
		return *v.IntValue, nil
	case FloatSetting:
		if v.DoubleValue == nil {
			return nil, errSettingValueTypeMismatch
		}
		return *v.DoubleValue, nil
	default:
		return nil, errSettingValueTypeMismatch
	}
}

func boolPtr(b bool) *bool      { return &b }
func intPtr(i int) *int         { return &i }
func f64Ptr(f float64) *float64 { return &f }
func strPtr(s string) *string   { return &s }

// Preferences carries data-governance metadata: the salt used by sensitive
// comparators and the CDN redirection rule for this config.
type Preferences struct {
	Salt     string           `json:"s"`
	BaseURL  string           `json:"u"`
	Redirect *RedirectionKind `json:"r"`
}

// SimplifiedConfig is the alternate, minimal JSON shape accepted by
// override files: a flat map of flag key to native JSON value.
type SimplifiedConfig struct {
	Flags map[string]json.RawMessage `json:"flags"`
}

// RedirectionKind controls the CDN data-governance redirect protocol.
type RedirectionKind uint8

const (
	// NoDirect means the current response is usable as-is, but subsequent
	// requests should go to the redirected base URL.
	NoDirect RedirectionKind = 0
	// ShouldRedirect means the current response is used as-is, a
	// data-governance warning is logged, and subsequent requests go to the
	// redirected base URL (unless talking to a custom base URL).
	ShouldRedirect RedirectionKind = 1
	// ForceRedirect means the client must redirect immediately even when
	// talking to a custom base URL.
	ForceRedirect RedirectionKind = 2
)

// SettingType is the declared Go type a setting's value must be read as.
type SettingType int8

const (
	BoolSetting   SettingType = 0
	StringSetting SettingType = 1
	IntSetting    SettingType = 2
	FloatSetting  SettingType = 3
)

// Comparator is the targeting-rule operator for a UserCondition.
type Comparator uint8

const (
	OpOneOf                       Comparator = 0
	OpNotOneOf                    Comparator = 1
	OpContains                    Comparator = 2
	OpNotContains                 Comparator = 3
	OpOneOfSemver                 Comparator = 4
	OpNotOneOfSemver              Comparator = 5
	OpLessSemver                  Comparator = 6
	OpLessEqSemver                Comparator = 7
	OpGreaterSemver                Comparator = 8
	OpGreaterEqSemver              Comparator = 9
	OpEqNum                       Comparator = 10
	OpNotEqNum                    Comparator = 11
	OpLessNum                     Comparator = 12
	OpLessEqNum                   Comparator = 13
	OpGreaterNum                  Comparator = 14
	OpGreaterEqNum                Comparator = 15
	OpOneOfHashed                 Comparator = 16
	OpNotOneOfHashed              Comparator = 17
	OpBeforeDateTime              Comparator = 18
	OpAfterDateTime               Comparator = 19
	OpEqHashed                    Comparator = 20
	OpNotEqHashed                 Comparator = 21
	OpStartsWithAnyOfHashed       Comparator = 22
	OpNotStartsWithAnyOfHashed    Comparator = 23
	OpEndsWithAnyOfHashed         Comparator = 24
	OpNotEndsWithAnyOfHashed      Comparator = 25
	OpArrayContainsAnyOfHashed    Comparator = 26
	OpArrayNotContainsAnyOfHashed Comparator = 27
	OpEq                          Comparator = 28
	OpNotEq                       Comparator = 29
	OpStartsWithAnyOf             Comparator = 30
	OpNotStartsWithAnyOf          Comparator = 31
	OpEndsWithAnyOf               Comparator = 32
	OpNotEndsWithAnyOf            Comparator = 33
	OpArrayContainsAnyOf          Comparator = 34
	OpArrayNotContainsAnyOf       Comparator = 35
)

// PrerequisiteComparator is the operator for a PrerequisiteFlagCondition.
type PrerequisiteComparator uint8

const (
	OpPrerequisiteEq    PrerequisiteComparator = 0
	OpPrerequisiteNotEq PrerequisiteComparator = 1
)

// SegmentComparator is the operator for a SegmentCondition.
type SegmentComparator uint8

const (
	OpSegmentIsIn    SegmentComparator = 0
	OpSegmentIsNotIn SegmentComparator = 1
)

var opStrings = [...]string{
	OpOneOf: "IS ONE OF", OpNotOneOf: "IS NOT ONE OF",
	OpContains: "CONTAINS ANY OF", OpNotContains: "NOT CONTAINS ANY OF",
	OpOneOfSemver: "IS ONE OF", OpNotOneOfSemver: "IS NOT ONE OF",
	OpLessSemver: "<", OpLessEqSemver: "<=", OpGreaterSemver: ">", OpGreaterEqSemver: ">=",
	OpEqNum: "=", OpNotEqNum: "!=", OpLessNum: "<", OpLessEqNum: "<=", OpGreaterNum: ">", OpGreaterEqNum: ">=",
	OpOneOfHashed: "IS ONE OF", OpNotOneOfHashed: "IS NOT ONE OF",
	OpBeforeDateTime: "BEFORE", OpAfterDateTime: "AFTER",
	OpEqHashed: "EQUALS", OpNotEqHashed: "NOT EQUALS",
	OpStartsWithAnyOfHashed: "STARTS WITH ANY OF", OpNotStartsWithAnyOfHashed: "NOT STARTS WITH ANY OF",
	OpEndsWithAnyOfHashed: "ENDS WITH ANY OF", OpNotEndsWithAnyOfHashed: "NOT ENDS WITH ANY OF",
	OpArrayContainsAnyOfHashed: "ARRAY CONTAINS ANY OF", OpArrayNotContainsAnyOfHashed: "ARRAY NOT CONTAINS ANY OF",
	OpEq: "EQUALS", OpNotEq: "NOT EQUALS",
	OpStartsWithAnyOf: "STARTS WITH ANY OF", OpNotStartsWithAnyOf: "NOT STARTS WITH ANY OF",
	OpEndsWithAnyOf: "ENDS WITH ANY OF", OpNotEndsWithAnyOf: "NOT ENDS WITH ANY OF",
	OpArrayContainsAnyOf: "ARRAY CONTAINS ANY OF", OpArrayNotContainsAnyOf: "ARRAY NOT CONTAINS ANY OF",
}

var opPrerequisiteStrings = [...]string{OpPrerequisiteEq: "EQUALS", OpPrerequisiteNotEq: "DOES NOT EQUAL"}

var opSegmentStrings = [...]string{OpSegmentIsIn: "IS IN SEGMENT", OpSegmentIsNotIn: "IS NOT IN SEGMENT"}

func (op Comparator) String() string {
	if int(op) >= len(opStrings) {
		return ""
	}
	return opStrings[op]
}

func (op Comparator) IsList() bool {
	switch op {
	case OpOneOf, OpOneOfHashed, OpNotOneOf, OpNotOneOfHashed, OpOneOfSemver, OpNotOneOfSemver, OpContains, OpNotContains,
		OpStartsWithAnyOf, OpStartsWithAnyOfHashed, OpEndsWithAnyOf, OpEndsWithAnyOfHashed,
		OpNotStartsWithAnyOf, OpNotStartsWithAnyOfHashed, OpNotEndsWithAnyOf, OpNotEndsWithAnyOfHashed,
		OpArrayContainsAnyOf, OpArrayNotContainsAnyOf, OpArrayContainsAnyOfHashed, OpArrayNotContainsAnyOfHashed:
		return true
	default:
		return false
	}
}

func (op Comparator) IsNumeric() bool {
	switch op {
	case OpEqNum, OpNotEqNum, OpLessNum, OpLessEqNum, OpGreaterNum, OpGreaterEqNum:
		return true
	default:
		return false
	}
}

func (op Comparator) IsSensitive() bool {
	switch op {
	case OpOneOfHashed, OpNotOneOfHashed, OpEqHashed, OpNotEqHashed, OpStartsWithAnyOfHashed, OpNotStartsWithAnyOfHashed,
		OpEndsWithAnyOfHashed, OpNotEndsWithAnyOfHashed, OpArrayContainsAnyOfHashed, OpArrayNotContainsAnyOfHashed:
		return true
	default:
		return false
	}
}

func (op Comparator) IsDateTime() bool {
	return op == OpBeforeDateTime || op == OpAfterDateTime
}

func (op Comparator) isSemver() bool {
	switch op {
	case OpOneOfSemver, OpNotOneOfSemver, OpLessSemver, OpLessEqSemver, OpGreaterSemver, OpGreaterEqSemver:
		return true
	default:
		return false
	}
}

func (op PrerequisiteComparator) String() string {
	if int(op) >= len(opPrerequisiteStrings) {
		return ""
	}
	return opPrerequisiteStrings[op]
}

func (op SegmentComparator) String() string {
	if int(op) >= len(opSegmentStrings) {
		return ""
	}
	return opSegmentStrings[op]
}

// ParseConfig unmarshals a config document and resolves its segment
// references and salt propagation.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, newConfigError(EventFetchFailedDueToInvalidConfigJSON, "failed to parse config JSON: %s", err)
	}
	postProcessConfig(&cfg)
	return &cfg, nil
}

// postProcessConfig propagates Preferences.Salt onto every Setting and
// resolves each SegmentCondition.Index to its referenced Segment. See
// DESIGN.md decision (a) for why salt, not the preferences URL, is the
// value copied here.
func postProcessConfig(cfg *Config) {
	salt := ""
	if cfg.Preferences != nil {
		salt = cfg.Preferences.Salt
	}
	for _, setting := range cfg.Settings {
		if setting == nil {
			continue
		}
		setting.Salt = salt
		for _, rule := range setting.TargetingRules {
			for _, cond := range rule.Conditions {
				if cond == nil || cond.SegmentCondition == nil {
					continue
				}
				idx := cond.SegmentCondition.Index
				if idx >= 0 && idx < len(cfg.Segments) {
					cond.SegmentCondition.relatedSegment = cfg.Segments[idx]
				}
			}
		}
	}
}
