package store

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

const graphExt = ".teg"

// Watcher keeps an in-memory index of encoded graph files in a
// directory. Files are keyed by the content identifier of the graph
// they contain, so the index stays consistent with writers that
// name files however they like.
type Watcher struct {
	w   *fsnotify.Watcher
	dir string
	log *log.Logger

	mu      sync.RWMutex
	byID    map[value.ID]string
	byPath  map[string]value.ID
	updates chan string
	errs    chan error
	done    chan struct{}
}

// NewWatcher indexes every graph file already present in dir and then
// follows filesystem events to keep the index current. A nil logger
// makes the watcher silent.
func NewWatcher(dir string, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "WATCH", "create filesystem watcher", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, diag.Wrap(diag.CategoryStore, "WATCH", "watch "+dir, err)
	}

	w := &Watcher{
		w:       fw,
		dir:     dir,
		log:     logger,
		byID:    make(map[value.ID]string),
		byPath:  make(map[string]value.ID),
		updates: make(chan string, 128),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	if err := w.scan(); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Lookup returns the path of the indexed file holding the graph with
// the given content identifier.
func (w *Watcher) Lookup(id value.ID) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	path, ok := w.byID[id]
	return path, ok
}

// IDs returns the content identifiers of every indexed graph file.
func (w *Watcher) IDs() []value.ID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]value.ID, 0, len(w.byID))
	for id := range w.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Updates delivers the path of each file the watcher re-indexes or
// drops. The channel is buffered; slow readers lose notifications,
// never index updates.
func (w *Watcher) Updates() <-chan string {
	return w.updates
}

// Errors delivers failures from the underlying filesystem watcher.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the event loop and releases the filesystem watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.w.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, graphExt) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.index(ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.drop(ev.Name)
	}
}

// scan indexes the graph files already present in the directory.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return diag.Wrap(diag.CategoryStore, "WATCH", "scan "+w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), graphExt) {
			continue
		}
		w.index(filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) index(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// The file may have been removed between the event and the
		// read; a later Remove event cleans up the index entry.
		if w.log != nil {
			w.log.Printf("store: read %s: %v", path, err)
		}
		return
	}
	g, err := teg.Decode(data)
	if err != nil {
		if w.log != nil {
			w.log.Printf("store: skip %s: %v", path, err)
		}
		w.drop(path)
		return
	}

	id := g.ContentID()
	w.mu.Lock()
	if old, ok := w.byPath[path]; ok && old != id {
		delete(w.byID, old)
	}
	w.byPath[path] = id
	w.byID[id] = path
	w.mu.Unlock()

	if w.log != nil {
		w.log.Printf("store: indexed %s as %s", path, id.Short())
	}
	w.notify(path)
}

func (w *Watcher) drop(path string) {
	w.mu.Lock()
	id, ok := w.byPath[path]
	if ok {
		delete(w.byPath, path)
		if w.byID[id] == path {
			delete(w.byID, id)
		}
	}
	w.mu.Unlock()
	if ok {
		w.notify(path)
	}
}

func (w *Watcher) notify(path string) {
	select {
	case w.updates <- path:
	default:
	}
}
