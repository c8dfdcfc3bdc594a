package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/formats"
)

type formatsEntry struct {
	formats   []entity.RawFormat
	expiresAt time.Time
}

// ListQualityOptions never returns a nil menu. A listing failure yields an
// empty menu together with a NetworkOrExtractionError.
func (svc *session) ListQualityOptions(ctx context.Context, rawURL string, includeAudioOnly bool) ([]entity.FormatOption, error) {
	u, err := svc.validateURL(rawURL)
	if err != nil {
		return []entity.FormatOption{}, err
	}

	raw, err := svc.rawFormats(ctx, u)
	if err != nil {
		return []entity.FormatOption{}, errs.New(errs.KindNetworkOrExtraction, "could not list formats", err)
	}

	menu := formats.BuildMenu(raw, includeAudioOnly)
	svc.metrics.RecordMenu(len(menu))

	svc.log.DebugContext(ctx, "quality menu built",
		slog.String("url", u),
		slog.Int("formats", len(raw)),
		slog.Int("options", len(menu)))

	return menu, nil
}

// rawFormats returns the cached formats of url, listing them when absent or stale.
func (svc *session) rawFormats(ctx context.Context, url string) ([]entity.RawFormat, error) {
	now := svc.now()

	svc.cacheMu.Lock()
	entry, ok := svc.cache[url]
	svc.cacheMu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		svc.metrics.RecordFormatsCache(true)

		return slices.Clone(entry.formats), nil
	}

	svc.metrics.RecordFormatsCache(false)

	raw, err := svc.extractor.ListFormats(ctx, url)
	if err != nil {
		return nil, err
	}

	if ttl := svc.cfg.Extractor.FormatsCacheTTL; ttl > 0 {
		svc.cacheMu.Lock()
		svc.cache[url] = formatsEntry{formats: slices.Clone(raw), expiresAt: now.Add(ttl)}

		// evict stale entries
		for k, e := range svc.cache {
			if !now.Before(e.expiresAt) {
				delete(svc.cache, k)
			}
		}
		svc.cacheMu.Unlock()
	}

	return raw, nil
}
