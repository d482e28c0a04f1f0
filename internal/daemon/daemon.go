package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ProjectMoon/reed/internal/config"
	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/index"
	"github.com/ProjectMoon/reed/internal/keys"
	"github.com/ProjectMoon/reed/internal/kv"
	"github.com/ProjectMoon/reed/internal/reconcile"
)

// Config holds configuration for the daemon.
type Config struct {
	// Kind selects the index namespace (posts or pages).
	Kind keys.Kind

	// DebounceInterval is how long a file must be quiet before its change
	// is applied. This batches rapid updates together.
	DebounceInterval time.Duration

	// Concurrency bounds parallel upserts and deletions during a full pass.
	Concurrency int

	// QueueSize bounds the calls deferred while initializing.
	QueueSize int

	// Transformer renders source files; nil uses content.NewTransformer.
	Transformer reconcile.Transformer

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for kind.
func DefaultConfig(kind keys.Kind) *Config {
	return &Config{
		Kind:             kind,
		DebounceInterval: 100 * time.Millisecond,
		Concurrency:      8,
		QueueSize:        256,
		Transformer:      content.NewTransformer(),
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// State is the lifecycle state of a Daemon.
type State int

const (
	// StateUnopened is the state before the first Open.
	StateUnopened State = iota
	// StateInitializing runs the initial pass; data calls are queued.
	StateInitializing
	// StateReady serves data calls and applies watcher events.
	StateReady
	// StateClosed is entered by Close or a failed initialization.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type pendingChange struct {
	op       EventOp
	queuedAt time.Time
}

// session holds everything owned by one Open..Close cycle.
type session struct {
	dir    string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	queue  *callQueue

	// Set by initialize before the session becomes ready.
	store   kv.Store
	watcher *FileWatcher
	rec     *reconcile.Reconciler

	changeQueue   map[string]pendingChange // path -> latest change
	changeQueueMu sync.Mutex

	// reconcileMu serializes full passes with watcher-driven changes, since
	// a cleanup must not remove a file indexed after its enumeration.
	reconcileMu sync.Mutex
}

// bind derives a context from ctx that also ends when the session does.
func (s *session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Daemon keeps one index kind in sync with a directory of markdown files.
type Daemon struct {
	config *Config
	shared *kv.Shared
	events *broadcaster

	mu    sync.Mutex
	state State
	sess  *session
}

// New creates a Daemon using the shared store connection.
//
// Zero fields in config take their DefaultConfig values. Use Open to begin
// watching and syncing.
func New(shared *kv.Shared, config *Config) (*Daemon, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig(keys.Posts)
	}

	cfg := *config
	def := DefaultConfig(cfg.Kind)
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = def.DebounceInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Transformer == nil {
		cfg.Transformer = def.Transformer
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	return &Daemon{
		config: &cfg,
		shared: shared,
		events: newBroadcaster(cfg.Logger),
	}, nil
}

// Kind returns the index kind this daemon maintains.
func (d *Daemon) Kind() keys.Kind {
	return d.config.Kind
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dir returns the absolute directory of the current or last session.
func (d *Daemon) Dir() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return ""
	}
	return d.sess.dir
}

// Subscribe registers a listener. Events published before subscribing are
// not replayed; events that do not fit in buffer are dropped. Call cancel to
// unsubscribe, which closes the channel.
func (d *Daemon) Subscribe(buffer int) (<-chan Event, func()) {
	return d.events.subscribe(buffer)
}

// Configure merges the non-zero fields of cfg into the shared store
// settings. They apply the next time the connection is dialed.
func (d *Daemon) Configure(cfg config.Store) {
	d.shared.Configure(cfg)
}

// Open starts syncing dir. Preconditions are checked synchronously; the
// initial pass runs in the background and ends with a ready event, or an
// error event if the daemon could not start.
//
// The initial pass:
//  1. Acquires the shared store and starts the watcher (events are buffered)
//  2. Upserts every markdown file at the top level of dir, emitting add/update
//  3. Removes index entries whose files are gone, emitting remove
//  4. Replays calls queued meanwhile, emits ready and starts applying
//     watcher events
func (d *Daemon) Open(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: must specify directory to read from", errs.ErrPrecondition)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateInitializing || d.state == StateReady {
		return fmt.Errorf("%w: %s already open on %s", errs.ErrPrecondition, d.config.Kind, d.sess.dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %s: %v", errs.ErrPrecondition, dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		dir:         absDir,
		ctx:         ctx,
		cancel:      cancel,
		queue:       newCallQueue(d.config.QueueSize),
		changeQueue: make(map[string]pendingChange),
	}
	d.sess = s
	d.state = StateInitializing

	s.wg.Add(1)
	go d.initialize(s)

	return nil
}

// Close stops the watcher, releases the store reference and fails any queued
// calls. It blocks until background work has exited.
func (d *Daemon) Close() error {
	d.mu.Lock()
	if d.state != StateInitializing && d.state != StateReady {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s is not open", errs.ErrPrecondition, d.config.Kind)
	}
	s := d.sess
	d.state = StateClosed
	queued := s.queue.drain()
	d.mu.Unlock()

	d.config.Logger.Printf("Closing %s on %s", d.config.Kind, s.dir)

	s.cancel()
	for _, c := range queued {
		c.fail(fmt.Errorf("%w: %s closed before ready", errs.ErrPrecondition, d.config.Kind))
	}

	s.wg.Wait()

	err := d.teardown(s)
	d.config.Logger.Printf("Closed %s", d.config.Kind)
	return err
}

func (d *Daemon) initialize(s *session) {
	defer s.wg.Done()

	d.config.Logger.Printf("Opening %s on %s", d.config.Kind, s.dir)

	store, err := d.shared.Acquire(s.ctx)
	if err != nil {
		d.abort(s, fmt.Errorf("failed to connect to store: %w", err))
		return
	}
	s.store = store
	ix := index.New(d.config.Kind, store, d.config.Logger)
	s.rec = reconcile.New(ix, d.config.Transformer, d.config.Concurrency, d.config.Logger)

	watcher, err := NewFileWatcher()
	if err != nil {
		d.abort(s, err)
		return
	}
	s.watcher = watcher
	if err := watcher.Start(s.dir); err != nil {
		d.abort(s, err)
		return
	}

	if err := d.syncDir(s.ctx, s); err != nil {
		d.abort(s, fmt.Errorf("initial sync failed: %w", err))
		return
	}

	d.mu.Lock()
	if d.sess != s || d.state != StateInitializing {
		// Closed while syncing; Close tears down.
		d.mu.Unlock()
		return
	}
	d.state = StateReady
	queued := s.queue.drain()
	s.wg.Add(len(queued) + 2)
	d.mu.Unlock()

	if len(queued) > 0 {
		d.config.Logger.Printf("Replaying %d queued calls", len(queued))
	}
	for _, c := range queued {
		go func() {
			defer s.wg.Done()
			c.run(s)
		}()
	}

	d.config.Logger.Printf("Watching: %s", s.watcher.Dir())
	d.emit(Event{Kind: EventReady})

	go d.watchFileEvents(s)
	go d.processChangeQueue(s)
}

// abort moves a failed initialization to Closed, unless Close got there first.
func (d *Daemon) abort(s *session, err error) {
	d.mu.Lock()
	if d.sess != s || d.state != StateInitializing {
		d.mu.Unlock()
		return
	}
	d.state = StateClosed
	queued := s.queue.drain()
	d.mu.Unlock()

	s.cancel()
	d.config.Logger.Printf("Initialization failed: %v", err)

	if terr := d.teardown(s); terr != nil {
		d.config.Logger.Printf("Error during teardown: %v", terr)
	}

	d.emitError(err)
	for _, c := range queued {
		c.fail(fmt.Errorf("%s failed to open: %w", d.config.Kind, err))
	}
}

func (d *Daemon) teardown(s *session) error {
	var errList []error

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errList = append(errList, err)
		}
		s.watcher = nil
	}
	if s.store != nil {
		if err := d.shared.Release(); err != nil {
			errList = append(errList, err)
		}
		s.store = nil
	}

	return errors.Join(errList...)
}

// syncDir runs a full pass over the session directory.
func (d *Daemon) syncDir(ctx context.Context, s *session) error {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	paths, err := ListMarkdown(s.dir)
	if err != nil {
		return err
	}

	d.config.Logger.Printf("Syncing %d files from %s", len(paths), s.dir)

	g := new(errgroup.Group)
	g.SetLimit(d.config.Concurrency)
	for _, path := range paths {
		g.Go(func() error {
			d.upsert(ctx, s, path)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	removed, err := s.rec.Cleanup(ctx, paths)
	for _, path := range removed {
		d.emit(Event{Kind: EventRemove, Path: path})
	}
	if err != nil && ctx.Err() == nil {
		d.emitError(fmt.Errorf("cleanup failed: %w", err))
	}

	d.config.Logger.Println("Sync complete")
	return ctx.Err()
}

func (d *Daemon) upsert(ctx context.Context, s *session, path string) {
	res, err := s.rec.Upsert(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			d.emitError(fmt.Errorf("failed to index %s: %w", path, err))
		}
		return
	}

	switch res {
	case reconcile.ResultNew:
		d.emit(Event{Kind: EventAdd, Title: keys.Title(path), Path: path})
	case reconcile.ResultUpdate:
		d.emit(Event{Kind: EventUpdate, Title: keys.Title(path), Path: path})
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents(s *session) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			s.queueChange(event)

		case err, ok := <-s.watcher.Errors():
			if !ok {
				return
			}
			d.emitError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (s *session) queueChange(event FileEvent) {
	s.changeQueueMu.Lock()
	defer s.changeQueueMu.Unlock()

	s.changeQueue[event.Path] = pendingChange{op: event.Op, queuedAt: time.Now()}
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges(s)
		}
	}
}

// processPendingChanges applies files that have been queued for long enough.
func (d *Daemon) processPendingChanges(s *session) {
	now := time.Now()

	s.changeQueueMu.Lock()
	var due []string
	for path, change := range s.changeQueue {
		// Only process if enough time has passed (debouncing)
		if now.Sub(change.queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, path)
		delete(s.changeQueue, path)
	}
	s.changeQueueMu.Unlock()

	sort.Strings(due)
	for _, path := range due {
		if s.ctx.Err() != nil {
			return
		}
		d.applyChange(s, path)
	}
}

// applyChange brings one path in line with the filesystem. The file's
// presence decides the action, whatever the last event was.
func (d *Daemon) applyChange(s *session, path string) {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	ctx := s.ctx
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		d.config.Logger.Printf("Removing: %s", path)
		if err := s.rec.Delete(ctx, path); err != nil {
			if ctx.Err() == nil {
				d.emitError(fmt.Errorf("failed to remove %s: %w", path, err))
			}
			return
		}
		d.emit(Event{Kind: EventRemove, Path: path})

	case err != nil:
		d.emitError(fmt.Errorf("failed to stat %s: %w", path, err))

	case !info.Mode().IsRegular():
		// Directories named like markdown files are not content.

	default:
		d.upsert(ctx, s, path)
	}
}

func (d *Daemon) emit(e Event) {
	e.Content = d.config.Kind
	d.events.publish(e)
}

func (d *Daemon) emitError(err error) {
	d.emit(Event{Kind: EventError, Err: err})
}

// ListMarkdown returns the absolute paths of the regular markdown files at
// the top level of dir, sorted. Symlinks are followed.
func ListMarkdown(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", absDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if !IsMarkdown(entry.Name()) {
			continue
		}
		path := filepath.Join(absDir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}

	sort.Strings(paths)
	return paths, nil
}
