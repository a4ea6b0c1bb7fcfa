package configcat

import (
	"fmt"
	"strconv"
	"strings"
)

// EvaluationDetails carries the result of evaluating a single feature flag
// or setting, successful or not. Error is non-nil when evaluation fell
// back to the caller-supplied default; Value is always either the served
// value or that default.
type EvaluationDetails[T any] struct {
	Value                   T
	Key                     string
	VariationID             string
	MatchedTargetingRule    *TargetingRule
	MatchedPercentageOption *PercentageOption
	Error                   *EvaluationError
}

// evalResult is the internal, untyped result produced by evaluateSetting.
type evalResult struct {
	value       any
	variationID string
	rule        *TargetingRule
	option      *PercentageOption
}

// evaluateSetting runs the full targeting-rule / percentage-option /
// segment / prerequisite algorithm for one setting. cycle tracks the
// prerequisite flags currently being evaluated on this call stack, to
// detect circular references. logger receives the non-fatal diagnostic
// warnings (missing/invalid user attributes); log, if non-nil and
// enabled, accumulates the human-readable evaluation trace.
func evaluateSetting(
	key string,
	setting *Setting,
	cfg *Config,
	user *User,
	cycle []string,
	logger Logger,
	log *evalLogBuilder,
) (evalResult, *EvaluationError) {
	if setting == nil {
		return evalResult{}, newEvalError(EventSettingKeyMissing, ErrKindSettingNotFound, "feature flag or setting with key '%s' not found", key)
	}
	cycle = append(append([]string{}, cycle...), key)

	warnedMissingUser := false
	for _, rule := range setting.TargetingRules {
		matched, evalErr := evalConditions(rule.Conditions, cfg, user, key, setting, cycle, logger, &warnedMissingUser, log)
		if evalErr != nil {
			return evalResult{}, evalErr
		}
		switch matched {
		case condMatch:
			if rule.ServedValue != nil {
				val, convErr := rule.ServedValue.Value.asTyped(setting.Type)
				if convErr != nil {
					return evalResult{}, newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "settings value is not of the expected type for setting '%s'", key)
				}
				log.newLine("=> MATCH, returning: %s", displaySettingValue(rule.ServedValue.Value))
				return evalResult{value: val, variationID: rule.ServedValue.VariationID, rule: rule}, nil
			}
			res, optErr := evalPercentageOptions(rule.PercentageOptions, setting, key, user, logger, log)
			if optErr != nil {
				return evalResult{}, optErr
			}
			if res != nil {
				res.rule = rule
				return *res, nil
			}
			// Percentage selection could not find an attribute: per the
			// evaluator algorithm, this continues to the next targeting
			// rule rather than falling through to the setting's own
			// percentage options.
			continue
		case condUserAttrMissingContinue, condNoMatch:
			continue
		}
	}

	if len(setting.PercentageOptions) > 0 {
		res, err := evalPercentageOptions(setting.PercentageOptions, setting, key, user, logger, log)
		if err != nil {
			return evalResult{}, err
		}
		if res != nil {
			return *res, nil
		}
	}

	val, convErr := setting.Value.asTyped(setting.Type)
	if convErr != nil {
		return evalResult{}, newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "settings value is not of the expected type for setting '%s'", key)
	}
	log.newLine("Returning '%v'.", val)
	return evalResult{value: val, variationID: setting.VariationID}, nil
}

func displaySettingValue(v *SettingValue) string {
	if v == nil {
		return "<null>"
	}
	switch {
	case v.BoolValue != nil:
		return fmt.Sprintf("%v", *v.BoolValue)
	case v.StringValue != nil:
		return fmt.Sprintf("%q", *v.StringValue)
	case v.IntValue != nil:
		return fmt.Sprintf("%v", *v.IntValue)
	case v.DoubleValue != nil:
		return fmt.Sprintf("%v", *v.DoubleValue)
	default:
		return "<null>"
	}
}

type condResult int

const (
	condMatch condResult = iota
	condNoMatch
	condUserAttrMissingContinue
)

// isSkippable reports whether an evaluation error represents a
// non-fatal targeting miss (no user, missing attribute, or an
// uncoercible attribute) rather than a configuration defect. Skippable
// errors cause the enclosing targeting rule to be skipped; everything
// else aborts the whole evaluation.
func isSkippable(err *EvaluationError) bool {
	return err.Kind == ErrKindAttributeMissing || err.Kind == ErrKindAttributeInvalid
}

// evalConditions AND-combines a targeting rule's conditions, short-
// circuiting (and logging "skipping the remaining AND conditions") on the
// first non-match. warnedMissingUser ensures a missing-user/missing-
// attribute warning is logged at most once per evaluateSetting call, even
// across multiple targeting rules.
func evalConditions(conds []*Condition, cfg *Config, user *User, settingKey string, setting *Setting, cycle []string, logger Logger, warnedMissingUser *bool, log *evalLogBuilder) (condResult, *EvaluationError) {
	log.newLine("IF")
	log.incIndent()
	defer log.decIndent()

	for i, cond := range conds {
		if i > 0 {
			log.newLine("AND")
		}
		var (
			ok  bool
			err *EvaluationError
		)
		switch {
		case cond.UserCondition != nil:
			ok, err = evalUserCondition(cond.UserCondition, setting.Salt, settingKey, user, logger, log)
		case cond.SegmentCondition != nil:
			ok, err = evalSegmentCondition(cond.SegmentCondition, cfg, user, setting.Salt, cycle, logger, log)
		case cond.PrerequisiteFlagCondition != nil:
			ok, err = evalPrerequisiteCondition(cond.PrerequisiteFlagCondition, cfg, user, cycle, logger, log)
		default:
			continue
		}
		if err != nil {
			if isSkippable(err) {
				if logger != nil && !*warnedMissingUser {
					*warnedMissingUser = true
					logger.Warn(err.Message, attrEventID(err.EventID))
				}
				return condUserAttrMissingContinue, nil
			}
			return condNoMatch, err
		}
		log.append(" => %t", ok)
		if !ok {
			if i < len(conds)-1 {
				log.append(", skipping the remaining AND conditions")
			}
			return condNoMatch, nil
		}
	}
	return condMatch, nil
}

// evalPercentageOptions buckets the user into one of options by
// percentage. If user is nil or the bucketing attribute is missing it logs
// a warning and returns nil (not an error), and the caller falls through to
// the next targeting rule (or, for the setting's own percentage list, to
// the default value).
func evalPercentageOptions(options []*PercentageOption, setting *Setting, settingKey string, user *User, logger Logger, log *evalLogBuilder) (*evalResult, *EvaluationError) {
	if len(options) == 0 {
		return nil, nil
	}
	if user == nil {
		if logger != nil {
			logger.Warn(fmt.Sprintf("cannot evaluate percentage options for setting '%s' because the User is missing", settingKey), attrEventID(EventEvaluationAttrMissing))
		}
		return nil, nil
	}
	attrName := setting.PercentageOptionsAttribute
	if attrName == "" {
		attrName = IdentifierAttr
	}
	raw := user.Get(attrName)
	if raw == nil {
		if logger != nil {
			logger.Warn(fmt.Sprintf("cannot evaluate percentage options for setting '%s' because the User.%s attribute is missing", settingKey, attrName), attrEventID(EventEvaluationAttrMissing))
		}
		return nil, nil
	}
	attrStr, _ := asString(raw)

	bucket := percentageBucket(settingKey, attrStr)
	var accum int64
	for _, opt := range options {
		accum += opt.Percentage
		if int64(bucket) < accum {
			log.newLine("Evaluating percentage options based on the value of attribute '%s' for bucket %d => selected.", attrName, bucket)
			val, convErr := opt.Value.asTyped(setting.Type)
			if convErr != nil {
				return nil, newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "percentage option value is not of the expected type for setting '%s'", settingKey)
			}
			return &evalResult{value: val, variationID: opt.VariationID, option: opt}, nil
		}
	}
	return nil, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "sum of percentage option percentages is less than 100 for setting '%s'", settingKey)
}

// evalPrerequisiteCondition recursively evaluates the referenced flag,
// detecting cycles via cycle (the stack of flag keys currently being
// evaluated on this call path).
func evalPrerequisiteCondition(cond *PrerequisiteFlagCondition, cfg *Config, user *User, cycle []string, logger Logger, log *evalLogBuilder) (bool, *EvaluationError) {
	for _, seen := range cycle {
		if seen == cond.FlagKey {
			path := append(append([]string{}, cycle...), cond.FlagKey)
			quoted := make([]string, len(path))
			for i, k := range path {
				quoted[i] = "'" + k + "'"
			}
			return false, newEvalError(EventEvaluationFailure, ErrKindPrerequisiteCycle, "circular dependency detected between the following depending flags: %s", strings.Join(quoted, " -> "))
		}
	}
	prereq, ok := cfg.Settings[cond.FlagKey]
	if !ok || prereq == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "prerequisite flag '%s' is missing", cond.FlagKey)
	}

	res, err := evaluateSetting(cond.FlagKey, prereq, cfg, user, cycle, logger, log)
	if err != nil {
		return false, err
	}
	expected, convErr := cond.Value.asTyped(prereq.Type)
	if convErr != nil {
		return false, newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "comparison value is not of the expected type for prerequisite flag '%s'", cond.FlagKey)
	}
	if fmt.Sprintf("%T", res.value) != fmt.Sprintf("%T", expected) {
		return false, newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "type mismatch between comparison value and prerequisite flag '%s'", cond.FlagKey)
	}
	equal := fmt.Sprint(res.value) == fmt.Sprint(expected)
	needsTrue := cond.Comparator == OpPrerequisiteEq
	return equal == needsTrue, nil
}

// evalSegmentCondition AND-combines a segment's user conditions then XORs
// the result with whether the comparator expects membership (IsIn) or
// non-membership (IsNotIn). The segment's own name, not the enclosing
// setting's key, is the hash context salt for any sensitive comparator
// inside it.
func evalSegmentCondition(cond *SegmentCondition, cfg *Config, user *User, salt string, cycle []string, logger Logger, log *evalLogBuilder) (bool, *EvaluationError) {
	seg := cond.relatedSegment
	if seg == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "segment reference is invalid")
	}
	log.newLine("(")
	log.incIndent()
	matched := true
	for i, uc := range seg.Conditions {
		ok, err := evalUserCondition(uc, salt, seg.Name, user, logger, log)
		if err != nil {
			log.decIndent()
			return false, err
		}
		if i > 0 {
			log.newLine("AND")
		}
		if !ok {
			matched = false
			break
		}
	}
	log.decIndent()
	log.newLine(")")
	needsTrue := cond.Comparator == OpSegmentIsIn
	return matched == needsTrue, nil
}

// isTextComparator reports whether comp resolves its comparison through
// the canonical-string coercion (asString), the group the "non-string
// attribute auto-converted" warning (event 3005) applies to.
func isTextComparator(comp Comparator) bool {
	switch comp {
	case OpOneOf, OpNotOneOf, OpOneOfHashed, OpNotOneOfHashed,
		OpEq, OpNotEq, OpEqHashed, OpNotEqHashed,
		OpContains, OpNotContains,
		OpStartsWithAnyOf, OpNotStartsWithAnyOf, OpStartsWithAnyOfHashed, OpNotStartsWithAnyOfHashed,
		OpEndsWithAnyOf, OpNotEndsWithAnyOf, OpEndsWithAnyOfHashed, OpNotEndsWithAnyOfHashed:
		return true
	default:
		return false
	}
}

// evalUserCondition dispatches a single UserCondition to the comparator
// group that implements it, classifying missing/invalid user attributes
// exactly as the evaluation algorithm requires. ctxSalt is the hash
// context salt: the enclosing setting's key for setting-level conditions,
// or the segment's name for conditions reached through a segment.
func evalUserCondition(cond *UserCondition, salt, ctxSalt string, user *User, logger Logger, log *evalLogBuilder) (bool, *EvaluationError) {
	if user == nil {
		return false, newEvalError(EventEvaluationUserMissingForTargeting, ErrKindAttributeMissing, "cannot evaluate, User Object is missing")
	}
	raw := user.Get(cond.ComparisonAttribute)
	if raw == nil {
		return false, newEvalError(EventEvaluationAttrMissing, ErrKindAttributeMissing, "cannot evaluate, the User.%s attribute is missing", cond.ComparisonAttribute)
	}

	comp := cond.Comparator
	if comp.IsSensitive() && salt == "" {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "config JSON salt is missing for a hashed comparison")
	}
	if isTextComparator(comp) {
		if _, coerced := asString(raw); coerced && logger != nil {
			logger.Warn(fmt.Sprintf("the value of the User.%s attribute is not a string; converting it to a string", cond.ComparisonAttribute), attrEventID(EventEvaluationAttrAutoConverted))
		}
	}

	switch {
	case comp == OpOneOf || comp == OpNotOneOf:
		return evalOneOf(cond, raw, false, "", "")
	case comp == OpOneOfHashed || comp == OpNotOneOfHashed:
		return evalOneOf(cond, raw, true, salt, ctxSalt)
	case comp == OpEq || comp == OpNotEq:
		return evalTextEq(cond, raw, false, "", "")
	case comp == OpEqHashed || comp == OpNotEqHashed:
		return evalTextEq(cond, raw, true, salt, ctxSalt)
	case comp == OpContains || comp == OpNotContains:
		return evalContains(cond, raw)
	case comp == OpStartsWithAnyOf || comp == OpNotStartsWithAnyOf:
		return evalStartsEndsWith(cond, raw, true, false, "", "")
	case comp == OpStartsWithAnyOfHashed || comp == OpNotStartsWithAnyOfHashed:
		return evalStartsEndsWith(cond, raw, true, true, salt, ctxSalt)
	case comp == OpEndsWithAnyOf || comp == OpNotEndsWithAnyOf:
		return evalStartsEndsWith(cond, raw, false, false, "", "")
	case comp == OpEndsWithAnyOfHashed || comp == OpNotEndsWithAnyOfHashed:
		return evalStartsEndsWith(cond, raw, false, true, salt, ctxSalt)
	case comp == OpOneOfSemver || comp == OpNotOneOfSemver:
		return evalSemverIsOneOf(cond, raw)
	case comp.isSemver():
		return evalSemverCompare(cond, raw)
	case comp.IsNumeric():
		return evalNumberCompare(cond, raw)
	case comp.IsDateTime():
		return evalDateCompare(cond, raw)
	case comp == OpArrayContainsAnyOf || comp == OpArrayNotContainsAnyOf:
		return evalArrayContains(cond, raw, false, "", "")
	case comp == OpArrayContainsAnyOfHashed || comp == OpArrayNotContainsAnyOfHashed:
		return evalArrayContains(cond, raw, true, salt, ctxSalt)
	default:
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "unsupported comparator")
	}
}

func negated(comp Comparator) bool {
	switch comp {
	case OpNotOneOf, OpNotOneOfHashed, OpNotContains, OpNotOneOfSemver, OpNotEqHashed, OpNotEq,
		OpNotStartsWithAnyOf, OpNotStartsWithAnyOfHashed, OpNotEndsWithAnyOf, OpNotEndsWithAnyOfHashed,
		OpArrayNotContainsAnyOf, OpArrayNotContainsAnyOfHashed:
		return true
	default:
		return false
	}
}

func evalOneOf(cond *UserCondition, raw UserValue, hashed bool, salt, ctxSalt string) (bool, *EvaluationError) {
	str, _ := asString(raw)
	match := false
	for _, candidate := range cond.StringArrayValue {
		if hashed {
			if candidate == hashSHA256Salted(str, salt, ctxSalt) {
				match = true
				break
			}
		} else if candidate == str {
			match = true
			break
		}
	}
	return match != negated(cond.Comparator), nil
}

func evalTextEq(cond *UserCondition, raw UserValue, hashed bool, salt, ctxSalt string) (bool, *EvaluationError) {
	str, _ := asString(raw)
	if cond.StringValue == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "comparison value is missing")
	}
	var match bool
	if hashed {
		match = *cond.StringValue == hashSHA256Salted(str, salt, ctxSalt)
	} else {
		match = str == *cond.StringValue
	}
	return match != negated(cond.Comparator), nil
}

func evalContains(cond *UserCondition, raw UserValue) (bool, *EvaluationError) {
	str, _ := asString(raw)
	match := false
	for _, candidate := range cond.StringArrayValue {
		if strings.Contains(str, candidate) {
			match = true
			break
		}
	}
	return match != negated(cond.Comparator), nil
}

// evalStartsEndsWith handles both the plain and hashed starts/ends-with
// comparator families. Hashed comparison values are "<len>_<hexhash>"
// strings: len is the candidate prefix/suffix's byte length, hexhash is
// the salted SHA-256 of that prefix/suffix.
func evalStartsEndsWith(cond *UserCondition, raw UserValue, starts, hashed bool, salt, ctxSalt string) (bool, *EvaluationError) {
	str, _ := asString(raw)
	match := false
	for _, candidate := range cond.StringArrayValue {
		if hashed {
			lenStr, hashPart, found := strings.Cut(candidate, "_")
			if !found || hashPart == "" {
				return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "comparison value is missing or invalid")
			}
			length, convErr := strconv.Atoi(lenStr)
			if convErr != nil || length < 0 || length > len(str) {
				continue
			}
			var slice string
			if starts {
				slice = str[:length]
			} else {
				slice = str[len(str)-length:]
			}
			if hashSHA256Salted(slice, salt, ctxSalt) == hashPart {
				match = true
				break
			}
		} else {
			if starts && strings.HasPrefix(str, candidate) {
				match = true
				break
			}
			if !starts && strings.HasSuffix(str, candidate) {
				match = true
				break
			}
		}
	}
	return match != negated(cond.Comparator), nil
}

func evalSemverIsOneOf(cond *UserCondition, raw UserValue) (bool, *EvaluationError) {
	userVer, ok := asSemverValue(raw)
	if !ok {
		return false, newEvalError(EventEvaluationAttrInvalid, ErrKindAttributeInvalid, "cannot evaluate, the User.%s attribute is invalid (not a valid semantic version)", cond.ComparisonAttribute)
	}
	match := false
	// DESIGN.md decision (b): unparsable entries are skipped, not treated
	// as an immediate non-match for the whole condition.
	for _, candidate := range cond.StringArrayValue {
		ver, err := parseSemver(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		if userVer.Equal(ver) {
			match = true
			break
		}
	}
	return match != negated(cond.Comparator), nil
}

func evalSemverCompare(cond *UserCondition, raw UserValue) (bool, *EvaluationError) {
	userVer, ok := asSemverValue(raw)
	if !ok {
		return false, newEvalError(EventEvaluationAttrInvalid, ErrKindAttributeInvalid, "cannot evaluate, the User.%s attribute is invalid (not a valid semantic version)", cond.ComparisonAttribute)
	}
	if cond.StringValue == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "comparison value is missing")
	}
	compVer, err := parseSemver(strings.TrimSpace(*cond.StringValue))
	if err != nil {
		return false, nil
	}
	cmp := userVer.Compare(compVer)
	switch cond.Comparator {
	case OpLessSemver:
		return cmp < 0, nil
	case OpLessEqSemver:
		return cmp <= 0, nil
	case OpGreaterSemver:
		return cmp > 0, nil
	case OpGreaterEqSemver:
		return cmp >= 0, nil
	default:
		return false, nil
	}
}

func evalNumberCompare(cond *UserCondition, raw UserValue) (bool, *EvaluationError) {
	userNum, ok := asFloat(raw)
	if !ok {
		return false, newEvalError(EventEvaluationAttrInvalid, ErrKindAttributeInvalid, "cannot evaluate, the User.%s attribute is invalid (not a valid decimal number)", cond.ComparisonAttribute)
	}
	if cond.DoubleValue == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "comparison value is missing")
	}
	compNum := *cond.DoubleValue
	switch cond.Comparator {
	case OpEqNum:
		return userNum == compNum, nil
	case OpNotEqNum:
		return userNum != compNum, nil
	case OpLessNum:
		return userNum < compNum, nil
	case OpLessEqNum:
		return userNum <= compNum, nil
	case OpGreaterNum:
		return userNum > compNum, nil
	case OpGreaterEqNum:
		return userNum >= compNum, nil
	default:
		return false, nil
	}
}

func evalDateCompare(cond *UserCondition, raw UserValue) (bool, *EvaluationError) {
	userTs, ok := asTimestamp(raw)
	if !ok {
		return false, newEvalError(EventEvaluationAttrInvalid, ErrKindAttributeInvalid, "cannot evaluate, the User.%s attribute is invalid (not a valid Unix timestamp)", cond.ComparisonAttribute)
	}
	if cond.DoubleValue == nil {
		return false, newEvalError(EventEvaluationFailure, ErrKindInvalidConfigModel, "comparison value is missing")
	}
	compTs := *cond.DoubleValue
	if cond.Comparator == OpBeforeDateTime {
		return userTs < compTs, nil
	}
	return userTs > compTs, nil
}

// evalArrayContains handles both the plain and sensitive array-membership
// comparator families as a single mutually-exclusive branch (DESIGN.md
// decision (c)).
func evalArrayContains(cond *UserCondition, raw UserValue, hashed bool, salt, ctxSalt string) (bool, *EvaluationError) {
	userItems, ok := asStringSlice(raw)
	if !ok {
		return false, newEvalError(EventEvaluationAttrInvalid, ErrKindAttributeInvalid, "cannot evaluate, the User.%s attribute is invalid (not a valid string array)", cond.ComparisonAttribute)
	}
	match := false
	for _, item := range userItems {
		if hashed {
			for _, candidate := range cond.StringArrayValue {
				if hashSHA256Salted(item, salt, ctxSalt) == candidate {
					match = true
					break
				}
			}
		} else {
			for _, candidate := range cond.StringArrayValue {
				if item == candidate {
					match = true
					break
				}
			}
		}
		if match {
			break
		}
	}
	return match != negated(cond.Comparator), nil
}
