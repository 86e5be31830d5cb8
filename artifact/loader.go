// Package artifact resolves, downloads, and decodes the model and
// vectorizer files the service is started with.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/db"
)

const (
	LabelModel      = "model"
	LabelVectorizer = "vectorizer"
)

// ErrNotFound means the file is absent locally and no remote source is configured.
var ErrNotFound = errors.New("artifact not found")

// DownloadError is returned when the remote source answers with a non-2xx status.
type DownloadError struct {
	URL    string
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
}

// Index records where downloaded artifacts came from.
type Index interface {
	Record(ctx context.Context, rec db.Record) error
	Lookup(ctx context.Context, label, version string) (*db.Record, error)
}

// FileName substitutes version into a name template such as "model-{version}.json".
func FileName(template, version string) string {
	return strings.ReplaceAll(template, "{version}", version)
}

type Loader struct {
	Dir     string
	Version string
	BaseURL string
	Client  *http.Client
	Index   Index // optional
	Logger  *zap.Logger
}

// Resolve returns the local path of the artifact named by template,
// downloading it from BaseURL first when it is not cached in Dir.
func (l *Loader) Resolve(ctx context.Context, label, template string) (string, error) {
	name := FileName(template, l.Version)
	path := filepath.Join(l.Dir, name)

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%s artifact %s is a directory", label, path)
		}
		l.logCacheHit(ctx, label, path)
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s artifact: %w", label, err)
	}

	if l.BaseURL == "" {
		abs, _ := filepath.Abs(path)
		return "", fmt.Errorf("%s artifact %s: %w", label, abs, ErrNotFound)
	}

	remote, err := url.JoinPath(l.BaseURL, name)
	if err != nil {
		return "", fmt.Errorf("build %s artifact url: %w", label, err)
	}
	if err := l.download(ctx, label, remote, path); err != nil {
		return "", err
	}
	return path, nil
}

func (l *Loader) download(ctx context.Context, label, remote, path string) error {
	log := l.logger().With(zap.String("label", label), zap.String("url", remote))
	log.Info("downloading artifact")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s artifact: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: remote, Status: resp.StatusCode}
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.Dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write %s artifact: %w", label, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	log.Info("artifact cached",
		zap.String("path", path),
		zap.Int64("bytes", n),
		zap.String("sha256", sum),
		zap.Duration("elapsed", time.Since(start)),
	)

	if l.Index != nil {
		rec := db.Record{
			Label:     label,
			Version:   l.Version,
			URL:       remote,
			Path:      path,
			Bytes:     n,
			SHA256:    sum,
			FetchedAt: time.Now(),
		}
		if err := l.Index.Record(ctx, rec); err != nil {
			log.Warn("failed to record artifact", zap.Error(err))
		}
	}
	return nil
}

func (l *Loader) logCacheHit(ctx context.Context, label, path string) {
	fields := []zap.Field{zap.String("label", label), zap.String("path", path)}
	if l.Index != nil {
		rec, err := l.Index.Lookup(ctx, label, l.Version)
		switch {
		case err == nil:
			fields = append(fields, zap.String("source", rec.URL), zap.Time("fetched_at", rec.FetchedAt))
		case !errors.Is(err, db.ErrNotFound):
			l.logger().Warn("artifact index lookup failed", zap.Error(err))
		}
	}
	l.logger().Info("using local artifact", fields...)
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
