package configcat

import "time"

const (
	// defaultPollInterval is the AutoPoll tick interval / LazyLoad TTL used
	// when WithPollingMode is not supplied.
	defaultPollInterval = 60 * time.Second

	// minPollInterval is the smallest interval WithPollingMode accepts;
	// smaller values are clamped up to it to keep the background poller
	// from thrashing the CDN.
	minPollInterval = 1 * time.Second

	// defaultRequestTimeout bounds a single HTTP round trip to the CDN.
	defaultRequestTimeout = 30 * time.Second

	// defaultReadyTimeout is a reasonable upper bound for WaitForReady
	// callers that don't supply their own context deadline.
	defaultReadyTimeout = 15 * time.Second
)
