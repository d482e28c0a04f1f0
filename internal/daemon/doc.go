// Package daemon keeps a content index in sync with a directory of markdown
// files.
//
// # Architecture
//
// The package consists of two components:
//
//   - FileWatcher: Cross-platform file system event monitoring using fsnotify
//   - Daemon: Lifecycle, initial reconciliation, change debouncing, call
//     queueing and domain events for one index kind (posts or pages)
//
// # Lifecycle
//
// A Daemon moves through four states:
//
//	Unopened --Open--> Initializing --pass done--> Ready --Close--> Closed
//	                        |                                        ^
//	                        +------ Close / init failure ------------+
//
// Closed daemons can be opened again. Open and Close check their
// preconditions synchronously and return errs.ErrPrecondition when violated.
// Everything after that runs in the background and reports failures as
// error events.
//
//	shared := kv.NewShared(cfg.Store, nil)
//	posts, err := daemon.New(shared, daemon.DefaultConfig(keys.Posts))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	events, cancel := posts.Subscribe(64)
//	defer cancel()
//
//	if err := posts.Open("/srv/blog/posts"); err != nil {
//	    log.Fatal(err)
//	}
//	defer posts.Close()
//
//	for ev := range events {
//	    switch ev.Kind {
//	    case daemon.EventReady:
//	        fmt.Println("ready")
//	    case daemon.EventAdd, daemon.EventUpdate:
//	        fmt.Printf("%s %s\n", ev.Kind, ev.Title)
//	    case daemon.EventRemove:
//	        fmt.Printf("removed %s\n", ev.Path)
//	    case daemon.EventError:
//	        log.Printf("error: %v", ev.Err)
//	    }
//	}
//
// # Deferred Calls
//
// Data methods (Get, List, All, Remove, ...) called while the daemon is
// initializing are queued on a bounded FIFO and replayed once the initial
// pass completes, each on its own goroutine. The caller blocks until its call
// runs or its context ends. A full queue returns errs.ErrQueueFull. Calls
// made before Open or after Close fail immediately.
//
// # File Watching
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// Only .md and .markdown files directly inside the directory are reported.
// Changes are debounced per path; when a change is applied the file's
// presence on disk decides between upsert and delete.
//
// # Events
//
// Subscribers receive ready, add(title), update(title), remove(path) and
// error(err) events. Events published before a subscription are lost, and a
// subscriber whose buffer is full misses events rather than stalling the
// daemon.
package daemon
