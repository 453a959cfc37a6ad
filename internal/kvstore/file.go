package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileStore persists keys in a single JSON file. Every mutation rewrites the
// whole file through a temp-file rename, so readers never observe a partial
// state. The file holds credentials and is created 0600.
type FileStore struct {
	mu       sync.Mutex
	path     string
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	debounce *time.Timer
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *FileStore) Put(key, value string) error {
	return f.Apply(map[string]string{key: value}, nil)
}

func (f *FileStore) Delete(key string) error {
	return f.Apply(nil, []string{key})
}

func (f *FileStore) Apply(put map[string]string, del []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	for k, v := range put {
		data[k] = v
	}
	for _, k := range del {
		delete(data, k)
	}
	return f.write(data)
}

func (f *FileStore) load() (map[string]string, error) {
	data := make(map[string]string)

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing state %s: %w", f.path, err)
	}
	if data == nil {
		data = make(map[string]string)
	}
	return data, nil
}

func (f *FileStore) write(data map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	raw = append(raw, '\n')

	// Temp file + rename keeps concurrent readers off half-written state.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// Watch invokes onChange (debounced) when another process rewrites the state
// file. The directory is watched rather than the file so renames and
// re-creations are caught.
func (f *FileStore) Watch(onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting state watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching state dir: %w", err)
	}

	f.mu.Lock()
	f.watcher = watcher
	f.stop = make(chan struct{})
	f.mu.Unlock()

	go f.watchLoop(onChange)
	return nil
}

func (f *FileStore) watchLoop(onChange func()) {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.mu.Lock()
			if f.debounce != nil {
				f.debounce.Stop()
			}
			f.debounce = time.AfterFunc(debounceInterval, onChange)
			f.mu.Unlock()
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		case <-f.stop:
			return
		}
	}
}

// Close stops the watcher, if one was started.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	if f.debounce != nil {
		f.debounce.Stop()
	}
	if f.watcher != nil {
		err := f.watcher.Close()
		f.watcher = nil
		return err
	}
	return nil
}
