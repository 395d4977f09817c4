// Package profiler turns the build host's lifecycle events into a session
// profile and persists it through a storage backend.
//
// A Listener is created once per build. The host delivers every lifecycle
// event to Listener.Handle, possibly from several worker goroutines; the
// listener serialises them, maintains the Session -> Project -> Mojo tree and
// drives the storage: Open at session start, periodic Checkpoint after project
// completion and Close once the final session status is known.
//
// Basic usage:
//
//	cfg, _ := config.Load("")
//	factory, _ := backends.New(ctx, cfg.Storage)
//	listener, err := profiler.New(cfg, factory)
//	if err != nil {
//	    return err
//	}
//	for _, ev := range events {
//	    if err := listener.Handle(ctx, ev); err != nil {
//	        log.Printf("profiler: %v", err)
//	    }
//	}
package profiler
