package configcat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// PollingMode selects how a configService keeps its config fresh.
type PollingMode int

const (
	// AutoPoll refreshes the config on a fixed interval in the background.
	AutoPoll PollingMode = iota
	// LazyLoad refreshes the config on demand whenever it is older than a
	// configured TTL.
	LazyLoad
	// ManualPoll never refreshes implicitly; callers must call Refresh.
	ManualPoll
)

// ClientCacheState describes what flag data, if any, a Client had ready to
// evaluate against at the moment WaitForReady returned.
type ClientCacheState int

const (
	// NoFlagData means no override, cache, or successful fetch has ever
	// produced a config.
	NoFlagData ClientCacheState = iota
	// HasCachedFlagDataOnly means a previously cached or fetched config is
	// held, but it is not known to be within its freshness window.
	HasCachedFlagDataOnly
	// HasUpToDateFlagData means the held config was fetched (or found
	// fresh in the external cache) within the current polling interval/TTL.
	HasUpToDateFlagData
	// HasLocalOverrideFlagDataOnly means the Client is configured for
	// LocalOnly overrides; the remote CDN is never consulted.
	HasLocalOverrideFlagDataOnly
)

func (s ClientCacheState) String() string {
	switch s {
	case HasLocalOverrideFlagDataOnly:
		return "HasLocalOverrideFlagDataOnly"
	case HasUpToDateFlagData:
		return "HasUpToDateFlagData"
	case HasCachedFlagDataOnly:
		return "HasCachedFlagDataOnly"
	default:
		return "NoFlagData"
	}
}

// ErrClientInitTimedOut is returned by Client.WaitForReady when the
// supplied context is done before the service completes its first
// initialization attempt. The ongoing fetch, if any, is not disrupted.
var ErrClientInitTimedOut = errors.New("configcat: waiting for the client to be ready timed out")

func (m PollingMode) String() string {
	switch m {
	case AutoPoll:
		return "auto"
	case LazyLoad:
		return "lazy"
	default:
		return "manual"
	}
}

// configService owns the single in-memory ConfigEntry for one SDK key and
// serializes every cache read / network fetch behind fetchIfOlder.
type configService struct {
	mode     PollingMode
	interval time.Duration // AutoPoll tick interval / LazyLoad TTL
	cacheKey string
	cache    Cache
	fetcher  *fetcher
	overrides *FlagOverrides
	logger   Logger
	onChanged func(*Config)

	mu    sync.RWMutex
	entry configEntry

	initialized atomic.Bool
	offline     atomic.Bool
	closed      atomic.Bool

	initOnce  sync.Once
	readyCh   chan struct{}
	closeOnce sync.Once
	stopPoll  chan struct{}
	wg        sync.WaitGroup

	group singleflight.Group
}

type serviceOption func(*configService)

func newConfigService(sdkKey string, mode PollingMode, interval time.Duration, f *fetcher, cache Cache, overrides *FlagOverrides, logger Logger, onChanged func(*Config)) *configService {
	if cache == nil {
		cache = newInMemoryCache()
	}
	svc := &configService{
		mode:      mode,
		interval:  interval,
		cacheKey:  cacheKeyFor(sdkKey),
		cache:     cache,
		fetcher:   f,
		overrides: overrides,
		logger:    logger,
		onChanged: onChanged,
		readyCh:   make(chan struct{}),
		stopPoll:  make(chan struct{}),
	}

	if overrides != nil && overrides.behavior == LocalOnly {
		svc.markInitialized()
		return svc
	}

	if mode == AutoPoll {
		svc.wg.Add(1)
		go svc.runPoll()
		go func() {
			svc.fetchIfOlder(context.Background(), nowUTC(), false)
		}()
	} else {
		svc.markInitialized()
	}
	return svc
}

func (s *configService) markInitialized() {
	s.initOnce.Do(func() {
		s.initialized.Store(true)
		close(s.readyCh)
	})
}

// waitForReady blocks until the service has made at least one attempt to
// become ready, or ctx is done, then reports what flag data (if any) is
// available to evaluate against.
func (s *configService) waitForReady(ctx context.Context) (ClientCacheState, error) {
	select {
	case <-s.readyCh:
		return s.cacheState(), nil
	case <-ctx.Done():
		return NoFlagData, ErrClientInitTimedOut
	}
}

// cacheState implements the classification in the wait-for-ready
// algorithm: local-override mode first, then freshness within the
// current polling interval/TTL, then "something is cached", then nothing.
func (s *configService) cacheState() ClientCacheState {
	if s.overrides != nil && s.overrides.behavior == LocalOnly {
		return HasLocalOverrideFlagDataOnly
	}

	s.mu.RLock()
	entry := s.entry
	s.mu.RUnlock()

	if entry.isEmpty() {
		return NoFlagData
	}

	switch s.mode {
	case AutoPoll:
		if nowUTC().Sub(entry.fetchTime) <= s.interval {
			return HasUpToDateFlagData
		}
	case LazyLoad:
		if nowUTC().Sub(entry.fetchTime) <= s.interval {
			return HasUpToDateFlagData
		}
	}
	return HasCachedFlagDataOnly
}

func (s *configService) runPoll() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			threshold := nowUTC().Add(-s.interval / 2)
			s.fetchIfOlder(context.Background(), threshold, false)
		case <-s.stopPoll:
			return
		}
	}
}

// getConfig returns the config entry to evaluate against, fetching first
// if the polling mode requires it.
func (s *configService) getConfig(ctx context.Context) (configEntry, error) {
	if s.overrides != nil && s.overrides.behavior == LocalOnly {
		return s.mergedEntry(emptyConfigEntry()), nil
	}

	var threshold time.Time
	preferCached := false
	switch s.mode {
	case LazyLoad:
		threshold = nowUTC().Add(-s.interval)
	case AutoPoll:
		threshold = time.Time{}
		preferCached = s.initialized.Load()
	case ManualPoll:
		threshold = time.Time{}
		preferCached = true
	}

	entry, err := s.fetchIfOlder(ctx, threshold, preferCached)
	if err != nil {
		return configEntry{}, err
	}
	return s.mergedEntry(entry), nil
}

// refresh forces an unconditional fetch, ignoring any freshness threshold.
func (s *configService) refresh(ctx context.Context) error {
	if s.overrides != nil && s.overrides.behavior == LocalOnly {
		s.logger.Warn("the SDK is set to local-only mode; calling .refresh() has no effect", attrEventID(EventLocalOnlyRefreshAttempted))
		return nil
	}
	if s.offline.Load() {
		s.logger.Warn("the SDK is in offline mode; calling .refresh() has no effect", attrEventID(EventOfflineRefreshAttempted))
		return nil
	}
	_, err := s.fetchIfOlder(ctx, nowUTC(), false)
	return err
}

// fetchIfOlder is the single serialization point for cache reads and
// network fetches. While offline it returns the held entry without reading
// the cache. Otherwise it re-reads the shared cache (so co-located SDK
// instances observe each other's writes), and only calls the fetcher if
// the resulting entry is older than threshold and preferCached is not in
// effect; preferCached is honoured only once the service is initialized.
func (s *configService) fetchIfOlder(ctx context.Context, threshold time.Time, preferCached bool) (configEntry, error) {
	if s.offline.Load() {
		s.mu.RLock()
		cur := s.entry
		s.mu.RUnlock()
		s.markInitialized()
		return cur, nil
	}

	result, err, _ := s.group.Do(s.cacheKey, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.readCacheLocked(ctx)

		if (preferCached && s.initialized.Load()) || !s.entry.fetchTime.Before(threshold) {
			s.markInitialized()
			return s.entry, nil
		}

		outcome := s.fetcher.fetch(ctx, s.entry)
		switch outcome.kind {
		case fetchedOK:
			changed := !s.entry.sameConfigAs(outcome.entry)
			s.entry = outcome.entry
			s.writeCacheLocked(ctx)
			if changed && s.onChanged != nil {
				s.onChanged(s.entry.config)
			}
		case fetchedNotModified:
			if s.entry.isEmpty() {
				// A 304 against an empty cached entry has nothing to
				// refresh; force one unconditional retry.
				s.logger.Warn("304 received for an empty cached config, forcing an unconditional refresh", attrEventID(EventFetchReceived304ForEmptyCache))
				forced := s.fetcher.fetch(ctx, configEntry{})
				if forced.kind == fetchedOK {
					s.entry = forced.entry
					s.writeCacheLocked(ctx)
					if s.onChanged != nil {
						s.onChanged(s.entry.config)
					}
				}
			} else {
				s.entry = outcome.entry
				s.writeCacheLocked(ctx)
			}
		case fetchedFailed:
			if outcome.err != nil {
				s.logger.Warn(outcome.err.Message, attrEventID(outcome.err.EventID))
			}
			if !outcome.transient && !s.entry.isEmpty() {
				// non-transient failure (e.g. invalid SDK key) with a
				// config already cached: suppress retries until the next
				// interval by bumping fetchTime, without touching the
				// held config.
				s.entry = s.entry.withFetchTime(nowUTC())
				s.writeCacheLocked(ctx)
			}
		}

		s.markInitialized()
		return s.entry, nil
	})
	if err != nil {
		return configEntry{}, err
	}
	return result.(configEntry), nil
}

func (s *configService) readCacheLocked(ctx context.Context) {
	raw, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		return
	}
	if raw == "" {
		return
	}
	fresh, err := entryFromCachedString(raw)
	if err != nil {
		s.logger.Warn("error occurred while reading the cache", attrEventID(EventCacheReadError))
		return
	}
	if !fresh.sameConfigAs(s.entry) {
		s.entry = fresh
	}
}

func (s *configService) writeCacheLocked(ctx context.Context) {
	if err := s.cache.Set(ctx, s.cacheKey, s.entry.serialize()); err != nil {
		s.logger.Warn("error occurred while writing the cache", attrEventID(EventCacheReadError))
	}
}

// mergedEntry applies the override behavior on top of entry. For LocalOnly,
// getConfig passes an empty entry, so the result holds only the override
// settings.
func (s *configService) mergedEntry(entry configEntry) configEntry {
	if s.overrides == nil {
		return entry
	}
	base := entry.config
	if base == nil {
		base = &Config{Settings: map[string]*Setting{}}
	}
	merged := make(map[string]*Setting, len(base.Settings))
	for k, v := range base.Settings {
		merged[k] = v
	}
	overrideSettings := s.overrides.source.Settings()
	switch s.overrides.behavior {
	case LocalOnly, LocalOverRemote:
		for k, v := range overrideSettings {
			merged[k] = v
		}
	case RemoteOverLocal:
		for k, v := range overrideSettings {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	out := entry
	out.config = &Config{Settings: merged, Segments: base.Segments, Preferences: base.Preferences}
	return out
}

func (s *configService) setOffline() { s.offline.Store(true) }
func (s *configService) setOnline()  { s.offline.Store(false) }
func (s *configService) isOffline() bool { return s.offline.Load() }

func (s *configService) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopPoll)
		s.wg.Wait()
	})
}
