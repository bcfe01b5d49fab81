// Package manager owns the live policy tree.
//
// A Manager builds the root policy through a loader.Loader and publishes it
// with an atomic swap, so requests in flight keep the tree they started with
// and new requests see the replacement. A reload that fails for any reason
// (store unreadable, unknown type, cycle, bad config) leaves the previous tree
// in place.
//
// # Reload Triggers
//
// Reloads can be requested explicitly with Reload, or driven by Run:
//
//   - a debounced fsnotify watch on the policy file (file store only)
//   - a cron schedule, which also pulls new commits for the git store
//
// # Basic Usage
//
//	m := manager.New(l, s, manager.Options{Root: "root", Logger: logger})
//	if err := m.Reload(ctx, manager.TriggerStartup); err != nil {
//	    return err
//	}
//	go m.Run(ctx, manager.WatchOptions{Schedule: "*/5 * * * *"})
//
//	root := m.Current()
package manager
