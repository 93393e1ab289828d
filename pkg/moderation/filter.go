package moderation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/voceacampusului/vocea/pkg/apperrors"
)

const CodeContentRejected = "CONTENT_REJECTED"

// reloadDelay lets editors finish writing before the file is read.
const reloadDelay = 100 * time.Millisecond

type termsFile struct {
	Terms []string `yaml:"terms"`
}

// LoadFile reads a YAML terms file.
func LoadFile(path string) (*TermSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read terms file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML terms document.
func Parse(data []byte) (*TermSet, error) {
	var f termsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse terms file: %w", err)
	}
	return NewTermSet(f.Terms...), nil
}

// Filter checks text against the current TermSet.
type Filter struct {
	terms  atomic.Pointer[TermSet]
	logger logrus.FieldLogger
}

// NewFilter creates a Filter. A nil set blocks nothing.
func NewFilter(set *TermSet, logger logrus.FieldLogger) *Filter {
	if set == nil {
		set = NewTermSet()
	}
	f := &Filter{logger: logger}
	f.terms.Store(set)
	return f
}

// Terms returns the current set.
func (f *Filter) Terms() *TermSet {
	return f.terms.Load()
}

// Replace swaps in a new set.
func (f *Filter) Replace(set *TermSet) {
	f.terms.Store(set)
}

// Check returns a CONTENT_REJECTED validation error naming field if text
// contains a blocked term.
func (f *Filter) Check(field, text string) error {
	if _, found := f.terms.Load().Find(text); found {
		return apperrors.Validation(CodeContentRejected, "text contains blocked terms").WithField("field", field)
	}
	return nil
}

// Watch reloads path into the filter on every change until ctx is done.
// A file that fails to parse keeps the previous set. The directory is
// watched so editors that replace the file by rename are seen.
func (f *Filter) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	logger := f.logger.WithField("path", target)
	logger.Info("watching moderation terms")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			time.Sleep(reloadDelay)
			set, err := LoadFile(target)
			if err != nil {
				logger.WithError(err).Warn("keeping previous moderation terms")
				continue
			}
			f.Replace(set)
			logger.WithField("terms", set.Len()).Info("reloaded moderation terms")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("moderation watcher error")
		}
	}
}
