package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// TemplateSource supplies the raw system-prompt template used to seed new
// sessions. Implementations must be safe for concurrent Template calls.
type TemplateSource interface {
	Template() string
	Close() error
}

// StaticTemplate serves a fixed template string.
type StaticTemplate string

func (s StaticTemplate) Template() string { return string(s) }

func (s StaticTemplate) Close() error { return nil }

// FileTemplate serves a template from disk and hot-reloads it on change.
// It watches the parent directory rather than the file itself; editors that
// replace the file via rename would otherwise drop the watch.
type FileTemplate struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current string

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewFileTemplate loads path and begins watching it for changes. The initial
// read must succeed; later reload failures keep the previous content.
func NewFileTemplate(path string, logger zerolog.Logger) (*FileTemplate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create template watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch template dir: %w", err)
	}

	ft := &FileTemplate{
		path:    path,
		logger:  logger,
		watcher: watcher,
		current: string(content),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go ft.run()

	return ft, nil
}

// Template returns the most recently loaded template content.
func (f *FileTemplate) Template() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Close stops the watcher. The last loaded content remains readable.
func (f *FileTemplate) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.stopCh)
		<-f.doneCh
		err = f.watcher.Close()
	})
	return err
}

func (f *FileTemplate) run() {
	defer close(f.doneCh)

	for {
		select {
		case <-f.stopCh:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f.reload()

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn().Err(err).Msg("template watcher error")
		}
	}
}

func (f *FileTemplate) reload() {
	content, err := os.ReadFile(f.path)
	if err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("template reload failed, keeping previous content")
		return
	}

	f.mu.Lock()
	f.current = string(content)
	f.mu.Unlock()

	f.logger.Info().Str("path", f.path).Msg("prompt template reloaded")
}
