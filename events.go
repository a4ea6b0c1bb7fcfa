package configcat

// Hooks lets callers observe Client lifecycle events. OnConfigChanged is
// invoked from whichever goroutine performed the fetch (the background
// poller, an explicit Refresh call, or an evaluation that triggered a
// fetch); OnReady is invoked from the goroutine calling WaitForReady.
// Callbacks must not block for long.
type Hooks struct {
	// OnConfigChanged fires whenever a newly fetched config differs (by
	// ETag) from the previously held one.
	OnConfigChanged func(cfg *Config)
	// OnError is not invoked by Client; fetch and cache failures are
	// reported through the configured logger.
	OnError func(err error)
	// OnReady fires each time Client.WaitForReady returns without error; it
	// is not invoked if WaitForReady is never called.
	OnReady func()
}

func (h *Hooks) configChanged(cfg *Config) {
	if h == nil || h.OnConfigChanged == nil {
		return
	}
	h.OnConfigChanged(cfg)
}

func (h *Hooks) errorOccurred(err error) {
	if h == nil || h.OnError == nil || err == nil {
		return
	}
	h.OnError(err)
}

func (h *Hooks) ready() {
	if h == nil || h.OnReady == nil {
		return
	}
	h.OnReady()
}
