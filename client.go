package configcat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client is the entry point for fetching and evaluating feature flags. It
// is safe for concurrent use by multiple goroutines.
type Client struct {
	sdkKey         string
	logger         Logger
	hooks          *Hooks
	service        *configService
	defaultUserVal *User
}

type options struct {
	pollingMode    PollingMode
	pollInterval   time.Duration
	httpClient     *http.Client
	baseURL        string
	governance     DataGovernance
	cache          Cache
	overrides      *FlagOverrides
	logger         *slog.Logger
	hooks          *Hooks
	defaultUser    *User
	requestTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		pollingMode:    AutoPoll,
		pollInterval:   defaultPollInterval,
		governance:     Global,
		requestTimeout: defaultRequestTimeout,
	}
}

// Option configures a Client. See WithPollingMode, WithLogger,
// WithHTTPClient, WithBaseURL, WithCache, WithOverrides, WithHooks,
// WithDefaultUser and WithRequestTimeout.
type Option func(*options)

// WithPollingMode selects AutoPoll (with interval), LazyLoad (with TTL) or
// ManualPoll. interval is clamped to minPollInterval to keep a misconfigured
// caller from hammering the CDN.
func WithPollingMode(mode PollingMode, interval time.Duration) Option {
	return func(o *options) {
		o.pollingMode = mode
		if interval < minPollInterval {
			interval = minPollInterval
		}
		o.pollInterval = interval
	}
}

// WithLogger sets the *slog.Logger used for diagnostic output. A nil
// logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient overrides the *http.Client used to contact the CDN.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBaseURL pins the fetcher to a custom base URL instead of the public
// CDN, disabling automatic data-governance redirects unless forced.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithDataGovernance selects the default CDN region (Global or EU) used
// when no custom base URL is configured.
func WithDataGovernance(g DataGovernance) Option {
	return func(o *options) { o.governance = g }
}

// WithCache supplies an external Cache (e.g. NewRedisCache) so multiple
// Client instances or processes can share one fetched config.
func WithCache(cache Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithOverrides configures local flag overrides and their merge behavior.
func WithOverrides(overrides *FlagOverrides) Option {
	return func(o *options) { o.overrides = overrides }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks *Hooks) Option {
	return func(o *options) { o.hooks = hooks }
}

// WithDefaultUser sets the User used for evaluations that don't supply
// their own.
func WithDefaultUser(user *User) Option {
	return func(o *options) { o.defaultUser = user }
}

// WithRequestTimeout overrides the per-request HTTP timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) { o.requestTimeout = timeout }
}

// New creates a Client for sdkKey. By default it uses AutoPoll with a
// 60-second interval against the global CDN.
func New(sdkKey string, opts ...Option) (*Client, error) {
	if sdkKey == "" {
		return nil, fmt.Errorf("sdkKey cannot be empty")
	}

	o := defaultOptions()
	for _, apply := range opts {
		apply(o)
	}

	logger := newLogger(o.logger)

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.requestTimeout}
	}

	var f *fetcher
	if o.overrides == nil || o.overrides.behavior != LocalOnly {
		f = newFetcher(sdkKey, httpClient, o.pollingMode.String(), o.governance, o.baseURL, logger)
	}

	hooks := o.hooks
	onChanged := func(cfg *Config) {
		hooks.configChanged(cfg)
	}

	svc := newConfigService(sdkKey, o.pollingMode, o.pollInterval, f, o.cache, o.overrides, logger, onChanged)

	return &Client{
		sdkKey:         sdkKey,
		logger:         logger,
		hooks:          hooks,
		service:        svc,
		defaultUserVal: o.defaultUser,
	}, nil
}

// WaitForReady blocks until the Client has attempted to become ready (one
// fetch attempt for AutoPoll, immediately for LazyLoad/ManualPoll/LocalOnly),
// or ctx is done, in which case it returns ErrClientInitTimedOut. On
// success it reports what flag data, if any, is available to evaluate
// against.
func (c *Client) WaitForReady(ctx context.Context) (ClientCacheState, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultReadyTimeout)
		defer cancel()
	}
	state, err := c.service.waitForReady(ctx)
	if err != nil {
		return state, err
	}
	c.hooks.ready()
	return state, nil
}

// Refresh forces an unconditional re-fetch of the config. A failed fetch is
// logged and does not make Refresh return an error; in offline or
// local-only mode Refresh only logs a warning.
func (c *Client) Refresh(ctx context.Context) error {
	return c.service.refresh(ctx)
}

// SetOffline stops the Client from making network requests; evaluations
// continue to use whatever config is already cached.
func (c *Client) SetOffline() { c.service.setOffline() }

// SetOnline resumes network requests after SetOffline.
func (c *Client) SetOnline() { c.service.setOnline() }

// IsOffline reports whether the Client is currently in offline mode.
func (c *Client) IsOffline() bool { return c.service.isOffline() }

// Close stops any background polling goroutine. A Client must not be used
// after Close.
func (c *Client) Close() {
	c.service.close()
}

// GetAllKeys returns every feature flag/setting key in the currently held
// config.
func (c *Client) GetAllKeys(ctx context.Context) ([]string, error) {
	entry, err := c.service.getConfig(ctx)
	if err != nil {
		return nil, err
	}
	if entry.config == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(entry.config.Settings))
	for k := range entry.config.Settings {
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *Client) evaluate(ctx context.Context, key string, user *User) (evalResult, *Config, *EvaluationError) {
	entry, err := c.service.getConfig(ctx)
	if err != nil {
		return evalResult{}, nil, newEvalError(EventConfigJSONNotPresent, ErrKindConfigJSONNotAvailable, "config JSON is not present, returning default value: %s", err)
	}
	if entry.config == nil {
		return evalResult{}, nil, newEvalError(EventConfigJSONNotPresent, ErrKindConfigJSONNotAvailable, "config JSON is not present, returning default value")
	}
	if user == nil {
		user = c.defaultUser()
	}

	log := newEvalLogBuilder(c.logger.Enabled(slog.LevelInfo))
	log.newLine("Evaluating '%s'", key)
	if user != nil {
		log.append(" for User '%v'", user)
	}

	res, evalErr := evaluateSetting(key, entry.config.Settings[key], entry.config, user, nil, c.logger, log)
	if evalErr != nil {
		c.logger.Warn(evalErr.Message, attrEventID(evalErr.EventID))
		return evalResult{}, entry.config, evalErr
	}
	if log.enabled {
		c.logger.Info(log.String(), attrEventID(EventEvaluationTrace))
	}
	return res, entry.config, nil
}

func (c *Client) defaultUser() *User { return c.defaultUserVal }

// GetBoolValue evaluates a boolean feature flag, falling back to
// defaultValue (and recording the reason in EvaluationDetails.Error) on
// any failure.
func (c *Client) GetBoolValue(ctx context.Context, key string, defaultValue bool, user *User) bool {
	return c.GetBoolValueDetails(ctx, key, defaultValue, user).Value
}

// GetBoolValueDetails is GetBoolValue plus full evaluation diagnostics.
func (c *Client) GetBoolValueDetails(ctx context.Context, key string, defaultValue bool, user *User) EvaluationDetails[bool] {
	res, _, err := c.evaluate(ctx, key, user)
	if err != nil {
		return EvaluationDetails[bool]{Value: defaultValue, Key: key, Error: err}
	}
	v, ok := res.value.(bool)
	if !ok {
		return EvaluationDetails[bool]{Value: defaultValue, Key: key, Error: newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "value is not a bool for setting '%s'", key)}
	}
	return EvaluationDetails[bool]{Value: v, Key: key, VariationID: res.variationID, MatchedTargetingRule: res.rule, MatchedPercentageOption: res.option}
}

// GetStringValue evaluates a string feature flag.
func (c *Client) GetStringValue(ctx context.Context, key string, defaultValue string, user *User) string {
	return c.GetStringValueDetails(ctx, key, defaultValue, user).Value
}

func (c *Client) GetStringValueDetails(ctx context.Context, key string, defaultValue string, user *User) EvaluationDetails[string] {
	res, _, err := c.evaluate(ctx, key, user)
	if err != nil {
		return EvaluationDetails[string]{Value: defaultValue, Key: key, Error: err}
	}
	v, ok := res.value.(string)
	if !ok {
		return EvaluationDetails[string]{Value: defaultValue, Key: key, Error: newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "value is not a string for setting '%s'", key)}
	}
	return EvaluationDetails[string]{Value: v, Key: key, VariationID: res.variationID, MatchedTargetingRule: res.rule, MatchedPercentageOption: res.option}
}

// GetIntValue evaluates a whole-number feature flag.
func (c *Client) GetIntValue(ctx context.Context, key string, defaultValue int, user *User) int {
	return c.GetIntValueDetails(ctx, key, defaultValue, user).Value
}

func (c *Client) GetIntValueDetails(ctx context.Context, key string, defaultValue int, user *User) EvaluationDetails[int] {
	res, _, err := c.evaluate(ctx, key, user)
	if err != nil {
		return EvaluationDetails[int]{Value: defaultValue, Key: key, Error: err}
	}
	v, ok := res.value.(int)
	if !ok {
		return EvaluationDetails[int]{Value: defaultValue, Key: key, Error: newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "value is not an int for setting '%s'", key)}
	}
	return EvaluationDetails[int]{Value: v, Key: key, VariationID: res.variationID, MatchedTargetingRule: res.rule, MatchedPercentageOption: res.option}
}

// GetFloatValue evaluates a decimal-number feature flag.
func (c *Client) GetFloatValue(ctx context.Context, key string, defaultValue float64, user *User) float64 {
	return c.GetFloatValueDetails(ctx, key, defaultValue, user).Value
}

func (c *Client) GetFloatValueDetails(ctx context.Context, key string, defaultValue float64, user *User) EvaluationDetails[float64] {
	res, _, err := c.evaluate(ctx, key, user)
	if err != nil {
		return EvaluationDetails[float64]{Value: defaultValue, Key: key, Error: err}
	}
	v, ok := res.value.(float64)
	if !ok {
		return EvaluationDetails[float64]{Value: defaultValue, Key: key, Error: newEvalError(EventSettingValueTypeMismatch, ErrKindTypeMismatch, "value is not a float for setting '%s'", key)}
	}
	return EvaluationDetails[float64]{Value: v, Key: key, VariationID: res.variationID, MatchedTargetingRule: res.rule, MatchedPercentageOption: res.option}
}
