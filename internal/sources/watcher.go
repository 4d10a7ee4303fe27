package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/metrics"
	"github.com/regwatch/munireg/internal/munireg"
)

// Change reports one country whose source content moved since the last
// check. Changed countries are candidates for a manual refresh.
type Change struct {
	Code   string `json:"code"`
	URL    string `json:"url"`
	Digest string `json:"digest"`
}

// Watcher fetches configured regulator pages, hashes their bodies, and
// compares against the stored digest per country.
type Watcher struct {
	fetcher Fetcher
	hasher  munireg.Hasher
	digests munireg.DigestStore
	blobs   munireg.BlobStore
	clock   munireg.Clock
	logger  *zap.Logger
	// ArchivePrefix, when set together with a blob store, receives the raw
	// body of every changed page.
	archivePrefix string
}

// NewWatcher constructs a Watcher. Blob archiving is optional.
func NewWatcher(
	fetcher Fetcher,
	hasher munireg.Hasher,
	digests munireg.DigestStore,
	blobs munireg.BlobStore,
	clock munireg.Clock,
	archivePrefix string,
	logger *zap.Logger,
) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Watcher{
		fetcher:       fetcher,
		hasher:        hasher,
		digests:       digests,
		blobs:         blobs,
		clock:         clock,
		logger:        logger,
		archivePrefix: archivePrefix,
	}
}

// CheckAll inspects every configured page. A page that fails to fetch or
// hash is logged and skipped; the sweep continues. A country with no stored
// digest counts as changed.
func (w *Watcher) CheckAll(ctx context.Context, pages []munireg.Source) ([]Change, error) {
	var changes []Change
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		change, changed, err := w.checkOne(ctx, page)
		if err != nil {
			w.logger.Warn("source check failed",
				zap.String("code", page.Code),
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		if changed {
			changes = append(changes, change)
		}
	}
	return changes, nil
}

func (w *Watcher) checkOne(ctx context.Context, page munireg.Source) (Change, bool, error) {
	body, err := w.fetcher.Fetch(ctx, page.URL)
	if err != nil {
		return Change{}, false, err
	}
	digest, err := w.hasher.Hash(body)
	if err != nil {
		return Change{}, false, fmt.Errorf("hash source body: %w", err)
	}

	previous, err := w.digests.GetDigest(ctx, page.Code)
	if err != nil && !errors.Is(err, munireg.ErrNotFound) {
		return Change{}, false, fmt.Errorf("load stored digest: %w", err)
	}
	if previous == digest {
		return Change{}, false, nil
	}

	now := w.clock.Now()
	if err := w.digests.PutDigest(ctx, page.Code, digest, now); err != nil {
		return Change{}, false, fmt.Errorf("store digest: %w", err)
	}
	w.archive(ctx, page.Code, body)
	metrics.ObserveSourceChange()

	w.logger.Info("source content changed",
		zap.String("code", page.Code),
		zap.String("url", page.URL),
		zap.String("digest", digest),
	)
	return Change{Code: page.Code, URL: page.URL, Digest: digest}, true, nil
}

// archive is best-effort; a storage failure never fails the check.
func (w *Watcher) archive(ctx context.Context, code string, body []byte) {
	if w.blobs == nil || w.archivePrefix == "" {
		return
	}
	path := fmt.Sprintf("%s/%s/%s.html", w.archivePrefix, code, w.clock.Now().UTC().Format("20060102T150405Z"))
	if _, err := w.blobs.PutObject(ctx, path, "text/html", bytes.NewReader(body)); err != nil {
		w.logger.Warn("archive source body failed",
			zap.String("code", code), zap.Error(err))
	}
}
