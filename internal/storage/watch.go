package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kokistudios/ultrathink/internal/sessionid"
)

// Watch calls onChange with the record's contents each time session id is
// written, until ctx is done. Writes land by rename, which shows up as a
// create event in the directory, so the directory is watched rather than
// the file.
func (s *FileStore) Watch(ctx context.Context, id string, onChange func(data []byte)) error {
	if err := sessionid.Validate(id); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: watch %s: %w", id, err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("storage: watch %s: %w", id, err)
	}
	target := filepath.Clean(s.Path(id))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			data, err := os.ReadFile(target)
			if err != nil {
				continue
			}
			onChange(data)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("storage: watch %s: %w", id, err)
		}
	}
}
