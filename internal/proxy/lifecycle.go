package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"birthdaysite/pkg/logger"

	"golang.org/x/sync/errgroup"
)

var ErrNotInstalled = errors.New("proxy is not installed")

// Install pre-caches every manifest resource into the static partition. It is
// all or nothing: if any resource fails, nothing is stored and the proxy
// stays uninstalled.
func (p *Proxy) Install(ctx context.Context) error {
	logger.Sugar.Info("Proxy: installing")

	entries := make([]*Entry, len(p.manifestList))
	g, gctx := errgroup.WithContext(ctx)
	for i, resource := range p.manifestList {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, resource, nil)
			if err != nil {
				return err
			}
			entry, err := p.fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", resource, err)
			}
			if entry.Status != http.StatusOK {
				return fmt.Errorf("precache %s: status %d", resource, entry.Status)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Sugar.Errorf("Proxy: install failed: %v", err)
		return err
	}

	static := p.caches.Open(p.staticName)
	for i, resource := range p.manifestList {
		static.Put(resource, entries[i])
	}
	p.installed.Store(true)
	logger.Sugar.Infof("Proxy: caching %d static files", len(entries))
	return nil
}

// Activate removes partitions left by other versions and starts serving
// requests through the cache.
func (p *Proxy) Activate() error {
	if !p.installed.Load() {
		return ErrNotInstalled
	}
	logger.Sugar.Info("Proxy: activating")

	for _, name := range p.caches.Names() {
		if name == p.staticName || name == p.dynamicName {
			continue
		}
		logger.Sugar.Infof("Proxy: deleting old cache %s", name)
		p.caches.Delete(name)
	}
	p.active.Store(true)
	return nil
}

func (p *Proxy) Active() bool { return p.active.Load() }

// CacheURLs stores each URL in the dynamic partition. A URL that cannot be
// fetched is skipped; the joined errors are returned.
func (p *Proxy) CacheURLs(ctx context.Context, urls []string) error {
	dynamic := p.caches.Open(p.dynamicName)

	var errs []error
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entry, err := p.fetch(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", u, err))
			continue
		}
		if entry.Status != http.StatusOK {
			errs = append(errs, fmt.Errorf("cache %s: status %d", u, entry.Status))
			continue
		}
		dynamic.Put(cacheKey(req), entry)
	}
	return errors.Join(errs...)
}

// SyncOfflineActions replays the offline queue. Actions that fail stay
// queued and are reported as an error.
func (p *Proxy) SyncOfflineActions(ctx context.Context) error {
	if p.queue == nil || p.replay == nil {
		return nil
	}
	done, remaining, err := p.queue.Drain(ctx, p.replay)
	if err != nil {
		logger.Sugar.Errorf("Proxy: offline sync failed: %v", err)
		return err
	}
	if done > 0 {
		logger.Sugar.Infof("Proxy: synced %d offline actions", done)
	}
	if remaining > 0 {
		return fmt.Errorf("%d offline actions still pending", remaining)
	}
	return nil
}
