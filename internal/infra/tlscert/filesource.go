package tlscert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileSource serves an operator-managed certificate and key. Issue reads
// the files; Watch reports changes so the Manager can republish.
type FileSource struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration
}

// FileSourceOption configures a FileSource.
type FileSourceOption func(*FileSource)

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileSourceOption {
	return func(f *FileSource) {
		f.logger = logger
	}
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) FileSourceOption {
	return func(f *FileSource) {
		f.debounce = d
	}
}

// NewFileSource creates a FileSource for a PEM chain and key.
func NewFileSource(certFile, keyFile string, opts ...FileSourceOption) *FileSource {
	f := &FileSource{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Issuer.
func (f *FileSource) Name() string { return "files" }

// Issue implements Issuer. The domain set is ignored; the files decide.
func (f *FileSource) Issue(ctx context.Context, _ []string) (*Bundle, error) {
	certPEM, err := os.ReadFile(f.certFile)
	if err != nil {
		return nil, fmt.Errorf("read cert file: %w", err)
	}
	keyPEM, err := os.ReadFile(f.keyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return &Bundle{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// Watch calls onChange after the certificate or key file is written or
// replaced, at most once per debounce period. It blocks until ctx is done.
func (f *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories so rename-based replacement is seen.
	certDir := filepath.Dir(f.certFile)
	keyDir := filepath.Dir(f.keyFile)
	if err := watcher.Add(certDir); err != nil {
		return fmt.Errorf("watch cert dir %s: %w", certDir, err)
	}
	if keyDir != certDir {
		if err := watcher.Add(keyDir); err != nil {
			return fmt.Errorf("watch key dir %s: %w", keyDir, err)
		}
	}

	f.logger.Info("certificate file watcher started", "cert_file", f.certFile, "key_file", f.keyFile)

	certBase := filepath.Base(f.certFile)
	keyBase := filepath.Base(f.keyFile)

	var settle *time.Timer
	var settleC <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			f.logger.Debug("certificate file changed", "file", event.Name, "op", event.Op.String())
			if settle == nil {
				settle = time.NewTimer(f.debounce)
			} else {
				settle.Reset(f.debounce)
			}
			settleC = settle.C

		case <-settleC:
			settleC = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("certificate watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}
