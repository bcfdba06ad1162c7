package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/bluecity/pkg/logging"
)

// FileSlot stores each key as <dir>/<key>.json
type FileSlot struct {
	dir string
}

// NewFileSlot creates a file slot rooted at dir, creating dir if needed
func NewFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileSlot{dir: dir}, nil
}

// Path returns the file backing key
func (f *FileSlot) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Read returns the file's contents, ErrNotFound when it does not exist
func (f *FileSlot) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the file atomically via a temp file and rename
func (f *FileSlot) Write(key string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path(key)); err != nil {
		return fmt.Errorf("failed to replace slot file: %w", err)
	}
	return nil
}

// Delete removes the file; a missing file is not an error
func (f *FileSlot) Delete(key string) error {
	err := os.Remove(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Watch reports every replacement of key's file, including our own writes.
// The directory is watched rather than the file because atomic writes swap
// the inode. The channel closes when ctx is done.
func (f *FileSlot) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	target := filepath.Clean(f.Path(key))
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				logging.Trace("slot file changed", "path", event.Name, "op", event.Op.String())
				// Coalesce: one pending notification is enough
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("slot watcher error", "error", err)
			}
		}
	}()

	return changes, nil
}
