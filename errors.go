package configcat

import "fmt"

// EventID identifies the numeric diagnostic code attached to every log
// record and error produced by this package, matching the event-id scheme
// the SDK was designed against.
type EventID int

const (
	EventNone EventID = 0

	EventConfigJSONNotPresent EventID = 1000
	EventSettingKeyMissing    EventID = 1001
	EventEvaluationFailure    EventID = 1002

	EventFetchFailedDueToInvalidSDKKey     EventID = 1100
	EventFetchFailedDueToUnexpectedHTTP    EventID = 1101
	EventFetchFailedDueToRequestTimeout    EventID = 1102
	EventFetchFailedDueToHTTPRequestError  EventID = 1103
	EventFetchFailedDueToRedirectLoop      EventID = 1104
	EventFetchFailedDueToInvalidConfigJSON EventID = 1105
	EventFetchReceived304ForEmptyCache     EventID = 1106

	EventSettingValueTypeMismatch EventID = 2002
	EventCacheReadError           EventID = 2201

	EventEvaluationUserMissingForTargeting EventID = 3001
	EventDataGovernanceMismatch             EventID = 3002
	EventEvaluationAttrMissing              EventID = 3003
	EventEvaluationAttrInvalid               EventID = 3004
	EventEvaluationAttrAutoConverted         EventID = 3005

	EventOfflineRefreshAttempted   EventID = 3200
	EventLocalOnlyRefreshAttempted EventID = 3202

	EventEvaluationTrace EventID = 5000
)

// EvaluationErrorKind classifies why an evaluation could not produce the
// served value it would otherwise have produced.
type EvaluationErrorKind int

const (
	// ErrKindNone means evaluation succeeded; EvaluationError is not used.
	ErrKindNone EvaluationErrorKind = iota
	// ErrKindSettingNotFound means the requested flag key does not exist.
	ErrKindSettingNotFound
	// ErrKindTypeMismatch means the requested Go type does not match the
	// setting's declared type.
	ErrKindTypeMismatch
	// ErrKindConfigJSONNotAvailable means no config was ever successfully
	// fetched or cached.
	ErrKindConfigJSONNotAvailable
	// ErrKindInvalidConfigModel means the setting definition itself is
	// malformed (missing segment reference, invalid percentage sum, etc).
	ErrKindInvalidConfigModel
	// ErrKindAttributeMissing means a targeting rule needed a user attribute
	// that was not present on the supplied User.
	ErrKindAttributeMissing
	// ErrKindAttributeInvalid means a targeting rule needed a user attribute
	// in a form that could not be coerced (e.g. unparsable semver).
	ErrKindAttributeInvalid
	// ErrKindPrerequisiteCycle means evaluating a prerequisite flag would
	// revisit a flag already on the evaluation stack.
	ErrKindPrerequisiteCycle
)

// EvaluationError describes why evaluation fell back to the caller-supplied
// default value. It is never returned as a Go error from the typed
// GetXxxValue methods; it is carried in EvaluationDetails.Error instead.
type EvaluationError struct {
	EventID EventID
	Kind    EvaluationErrorKind
	Message string
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func newEvalError(id EventID, kind EvaluationErrorKind, format string, args ...any) *EvaluationError {
	return &EvaluationError{EventID: id, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FetchError describes why the fetcher could not retrieve or parse a
// config document. The config service logs it with its EventID; it is not
// returned from Client.Refresh.
type FetchError struct {
	EventID   EventID
	Message   string
	Transient bool
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func newFetchError(id EventID, transient bool, format string, args ...any) *FetchError {
	return &FetchError{EventID: id, Transient: transient, Message: fmt.Sprintf(format, args...)}
}

// ConfigError is returned by ParseConfig and the cache codec when the
// config document or a cached entry cannot be decoded.
type ConfigError struct {
	EventID EventID
	Message string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func newConfigError(id EventID, format string, args ...any) *ConfigError {
	return &ConfigError{EventID: id, Message: fmt.Sprintf(format, args...)}
}
