// Package configcat provides a client SDK core for a feature-flag and
// dynamic-configuration service: it fetches a signed config document from
// a CDN, caches it, and evaluates typed feature flags against targeting
// rules, percentage rollout, segments and prerequisite flags.
//
// # Basic Usage
//
//	client, err := configcat.New("YOUR_SDK_KEY")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
//	defer cancel()
//	if _, err := client.WaitForReady(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	user := configcat.NewUser("user-123").WithEmail("user@example.com")
//	enabled := client.GetBoolValue(context.Background(), "new-feature", false, user)
//
// Evaluation errors never propagate as Go errors from GetBoolValue and its
// siblings: on failure the method still returns the caller-supplied
// default. Use the *Details variants to distinguish success from fallback
// via EvaluationDetails.Error.
//
// # Configuration
//
//	client, _ := configcat.New("YOUR_SDK_KEY",
//	    configcat.WithPollingMode(configcat.LazyLoad, 30*time.Second),
//	    configcat.WithLogger(logger),
//	)
//
// # Concurrency
//
// Client is thread-safe. Multiple goroutines can evaluate flags
// concurrently. Close stops the background poller (if any) and waits for
// it to exit.
package configcat
