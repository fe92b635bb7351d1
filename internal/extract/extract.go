package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"bookshelf/internal/config"
	"bookshelf/internal/services"
)

var (
	// ErrUnsupported reports a file type with no extractor.
	ErrUnsupported = fmt.Errorf("%w: unsupported file type", services.ErrValidation)
	// ErrTimeout reports that extraction did not finish within the deadline.
	ErrTimeout = fmt.Errorf("%w: extraction timed out", services.ErrTimeout)
)

// Error wraps any extraction failure for a file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return "Extraction Failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options bound the work done per file.
type Options struct {
	MaxChars     int
	EpubSections int
	Timeout      time.Duration
}

// OptionsFromConfig maps job settings onto extractor options.
func OptionsFromConfig(job config.Job) Options {
	return Options{
		MaxChars:     job.MaxContentChars,
		EpubSections: job.EpubSections,
		Timeout:      time.Duration(job.ExtractTimeoutSeconds) * time.Second,
	}
}

// Extractor dispatches on file extension.
type Extractor struct {
	opts Options
}

// New returns an extractor with the supplied bounds. Zero values fall back to
// the repository defaults.
func New(opts Options) *Extractor {
	defaults := OptionsFromConfig(config.Default().Job)
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	if opts.EpubSections <= 0 {
		opts.EpubSections = defaults.EpubSections
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	return &Extractor{opts: opts}
}

// Supported reports whether path has an extractor.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub", ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}

// Extract returns at most MaxChars characters of text from path. Failures are
// returned as *Error.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		text, err = e.race(ctx, func(ctx context.Context) (string, error) {
			return readEPUB(ctx, path, e.opts.EpubSections, e.opts.MaxChars)
		})
	case ".pdf":
		text, err = e.race(ctx, func(ctx context.Context) (string, error) {
			return readPDF(path, e.opts.MaxChars)
		})
	case ".txt", ".md":
		text, err = readText(path, e.opts.MaxChars)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return text, nil
}

// race runs fn against the configured timeout. The worker observes ctx so it
// stops at its next checkpoint once the race is lost.
func (e *Extractor) race(parent context.Context, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("parser panic: %v", r)}
			}
		}()
		text, err := fn(ctx)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(e.opts.Timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.text, res.err
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrTimeout, e.opts.Timeout)
	case <-parent.Done():
		return "", parent.Err()
	}
}

func readText(path string, maxChars int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return truncate(strings.ToValidUTF8(string(data), ""), maxChars), nil
}

// truncate cuts s to at most maxChars runes.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}

// IsTimeout reports whether err is an extraction timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
