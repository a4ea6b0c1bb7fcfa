package configcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	globalBaseURL = "https://cdn-global.configcat.com"
	euBaseURL     = "https://cdn-eu.configcat.com"

	userAgentHeader = "X-ConfigCat-UserAgent"
	etagHeader      = "ETag"
	ifNoneMatch     = "If-None-Match"

	maxRedirects = 3

	sdkVersion = "1.0.0"
)

// DataGovernance selects which default CDN region a Client talks to when
// no custom base URL is configured.
type DataGovernance int

const (
	Global DataGovernance = iota
	EU
)

// fetchOutcome is the tagged result of one HTTP round trip against the
// CDN, mirroring the Fetched/NotModified/Failed shape used throughout the
// fetch pipeline.
type fetchOutcome struct {
	kind      fetchOutcomeKind
	entry     configEntry
	err       *FetchError
	transient bool
}

type fetchOutcomeKind int

const (
	fetchedOK fetchOutcomeKind = iota
	fetchedNotModified
	fetchedFailed
)

// fetcher performs conditional GETs against the CDN, following the
// data-governance redirect protocol.
type fetcher struct {
	sdkKey      string
	httpClient  *http.Client
	pollingMode string
	isCustomURL bool
	logger      Logger
	mu          sync.Mutex
	baseURL     string
}

func newFetcher(sdkKey string, httpClient *http.Client, pollingMode string, governance DataGovernance, customBaseURL string, logger Logger) *fetcher {
	base := globalBaseURL
	if governance == EU {
		base = euBaseURL
	}
	isCustom := customBaseURL != ""
	if isCustom {
		base = customBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &fetcher{
		sdkKey:      sdkKey,
		httpClient:  httpClient,
		pollingMode: pollingMode,
		isCustomURL: isCustom,
		logger:      logger,
		baseURL:     base,
	}
}

// proxyKeyPrefix marks an SDK key that addresses a self-hosted proxy
// rather than the public CDN; proxies never need a data-governance
// redirect, even when talking through a custom base URL.
const proxyKeyPrefix = "configcat-proxy/"

func isProxyKey(sdkKey string) bool {
	return strings.HasPrefix(sdkKey, proxyKeyPrefix)
}

func (f *fetcher) currentBaseURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseURL
}

func (f *fetcher) setBaseURL(u string) {
	f.mu.Lock()
	f.baseURL = u
	f.mu.Unlock()
}

// fetch performs the redirect-aware fetch protocol. prev is the
// currently-cached entry: its ETag drives the conditional GET, and on a 304
// it is returned with a fresh fetch time and its preferences drive the
// redirect check.
func (f *fetcher) fetch(ctx context.Context, prev configEntry) fetchOutcome {
	for i := 0; i < maxRedirects; i++ {
		base := f.currentBaseURL()
		outcome := f.fetchHTTPWithoutRedirect(ctx, base, prev)
		if outcome.kind == fetchedFailed {
			return outcome
		}

		var cfg *Config
		if outcome.kind == fetchedOK {
			cfg = outcome.entry.config
		} else {
			cfg = prev.config
		}
		if cfg == nil || cfg.Preferences == nil || cfg.Preferences.Redirect == nil {
			return outcome
		}

		newURL := cfg.Preferences.BaseURL
		if newURL == "" || newURL == base {
			return outcome
		}

		redirect := *cfg.Preferences.Redirect
		if f.isCustomURL && (isProxyKey(f.sdkKey) || redirect != ForceRedirect) {
			return outcome
		}

		f.setBaseURL(newURL)
		switch redirect {
		case NoDirect:
			return outcome
		case ShouldRedirect:
			if f.logger != nil {
				f.logger.Warn("the SDK key for the ConfigCat config you are using belongs to a different data governance region; rewriting the base URL", attrEventID(EventDataGovernanceMismatch))
			}
			return outcome
		case ForceRedirect:
			continue
		default:
			return outcome
		}
	}
	return fetchOutcome{
		kind: fetchedFailed,
		err:  newFetchError(EventFetchFailedDueToRedirectLoop, false, "redirection loop encountered while trying to fetch config JSON, please contact ConfigCat support"),
	}
}

func (f *fetcher) fetchHTTPWithoutRedirect(ctx context.Context, base string, prev configEntry) fetchOutcome {
	reqURL := base + "/configuration-files/" + url.PathEscape(f.sdkKey) + "/" + configFileName

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fetchOutcome{kind: fetchedFailed, transient: false, err: newFetchError(EventFetchFailedDueToHTTPRequestError, false, "failed to build request: %s", err)}
	}
	req.Header.Set(userAgentHeader, fmt.Sprintf("ConfigCat-Go/%s-%s", pollingModeIdentifier(f.pollingMode), sdkVersion))
	if prev.etag != "" {
		req.Header.Set(ifNoneMatch, prev.etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fetchOutcome{kind: fetchedFailed, transient: true, err: newFetchError(EventFetchFailedDueToRequestTimeout, true, "request timed out while trying to fetch config JSON")}
		}
		return fetchOutcome{kind: fetchedFailed, transient: true, err: newFetchError(EventFetchFailedDueToHTTPRequestError, true, "unexpected error occurred while trying to fetch config JSON: %s", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return fetchOutcome{kind: fetchedNotModified, entry: prev.withFetchTime(nowUTC())}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fetchOutcome{kind: fetchedFailed, transient: true, err: newFetchError(EventFetchFailedDueToHTTPRequestError, true, "failed to read response body: %s", readErr)}
		}
		cfg, parseErr := ParseConfig(body)
		if parseErr != nil {
			return fetchOutcome{kind: fetchedFailed, transient: true, err: newFetchError(EventFetchFailedDueToInvalidConfigJSON, true, "fetching config JSON was successful but the HTTP response content was invalid: %s", parseErr)}
		}
		return fetchOutcome{
			kind: fetchedOK,
			entry: configEntry{
				config:     cfg,
				configJSON: body,
				etag:       resp.Header.Get(etagHeader),
				fetchTime:  nowUTC(),
			},
		}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fetchOutcome{kind: fetchedFailed, transient: false, err: newFetchError(EventFetchFailedDueToInvalidSDKKey, false, "your SDK Key seems to be invalid; please check your SDK Key")}
	default:
		return fetchOutcome{kind: fetchedFailed, transient: true, err: newFetchError(EventFetchFailedDueToUnexpectedHTTP, true, "unexpected HTTP response was received: %d", resp.StatusCode)}
	}
}

// nowUTC is overridable in tests.
var nowUTC = func() time.Time { return time.Now().UTC() }

func pollingModeIdentifier(mode string) string {
	switch mode {
	case "auto":
		return "a"
	case "lazy":
		return "l"
	default:
		return "m"
	}
}
