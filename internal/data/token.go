package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/log"
)

const tokenDebounce = 200 * time.Millisecond

// TokenFile reads the relay token from a plain text file on every call.
type TokenFile struct {
	path string
}

func NewTokenFile(c *conf.Relay) *TokenFile {
	return &TokenFile{path: c.TokenFile}
}

func (t *TokenFile) Path() string {
	return t.path
}

func (t *TokenFile) Token() (string, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Watch calls onChange (debounced) whenever the token file is written,
// created, replaced or removed. It returns when ctx is done.
func (t *TokenFile) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("token watcher: %w", err)
	}
	defer w.Close()

	// 监听目录, 编辑器和 secret 挂载通常是替换文件而不是原地写
	dir := filepath.Dir(t.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("token watcher: watch %s: %w", dir, err)
	}
	name := filepath.Clean(t.path)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounce.Reset(tokenDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[token] watcher error: %v", err)
		case <-debounce.C:
			log.Infof("[token] %s changed", t.path)
			onChange()
		}
	}
}
