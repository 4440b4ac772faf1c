package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"birthdaysite/internal/offline"
	"birthdaysite/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultVersion      = "v1.0"
	DefaultFallbackPath = "/index.html"
	offlineBody         = "Offline content not available"
)

// DefaultManifest lists the resources pre-cached on install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/script.js",
}

var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true,
	".jpeg": true, ".svg": true, ".ico": true,
}

type Config struct {
	Version      string
	Manifest     []string
	FallbackPath string
	// Host is the site's own host. Absolute-form requests for any other host
	// skip the caches; with Host empty every absolute-form request does.
	Host string
}

func StaticCacheName(version string) string  { return "birthday-static-" + version }
func DynamicCacheName(version string) string { return "birthday-dynamic-" + version }

// Proxy serves site requests cache-first in front of an origin Fetcher. It
// passes every request straight through until Activate claims control.
type Proxy struct {
	fetcher Fetcher
	caches  *CacheStorage
	queue   *offline.Queue
	replay  offline.ReplayFunc
	now     func() time.Time

	manifest     map[string]bool
	manifestList []string
	fallbackPath string
	host         string
	staticName   string
	dynamicName  string

	installed atomic.Bool
	active    atomic.Bool

	revalidations singleflight.Group
	bgCtx         context.Context
	bgCancel      context.CancelFunc
	bgWG          sync.WaitGroup
}

func New(fetcher Fetcher, caches *CacheStorage, cfg Config) *Proxy {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Manifest == nil {
		cfg.Manifest = DefaultManifest
	}
	if cfg.FallbackPath == "" {
		cfg.FallbackPath = DefaultFallbackPath
	}
	manifest := make(map[string]bool, len(cfg.Manifest))
	for _, m := range cfg.Manifest {
		manifest[m] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Proxy{
		fetcher:      fetcher,
		caches:       caches,
		now:          time.Now,
		manifest:     manifest,
		manifestList: cfg.Manifest,
		fallbackPath: cfg.FallbackPath,
		host:         cfg.Host,
		staticName:   StaticCacheName(cfg.Version),
		dynamicName:  DynamicCacheName(cfg.Version),
		bgCtx:        ctx,
		bgCancel:     cancel,
	}
}

// SetOfflineQueue wires the queue drained by SyncOfflineActions.
func (p *Proxy) SetOfflineQueue(queue *offline.Queue, replay offline.ReplayFunc) {
	p.queue = queue
	p.replay = replay
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || !p.sameOrigin(r) || !p.active.Load() {
		p.passThrough(w, r)
		return
	}

	key := cacheKey(r)
	if entry, ok := p.caches.Match(key); ok {
		logger.Sugar.Debugf("Proxy: serving from cache %s", key)
		if acceptsMarkup(r) {
			p.revalidate(r)
		}
		writeEntry(w, entry, "HIT")
		return
	}

	entry, err := p.fetchAndCache(r.Context(), r)
	if err != nil || entry.Status != http.StatusOK {
		if err != nil {
			logger.Sugar.Warnf("Proxy: fetch failed for %s: %v", key, err)
		}
		p.serveOffline(w, r)
		return
	}
	writeEntry(w, entry, "MISS")
}

// fetchAndCache fetches r from the origin. Successful responses are stored
// in the static or dynamic partition before being returned.
func (p *Proxy) fetchAndCache(ctx context.Context, r *http.Request) (*Entry, error) {
	entry, err := p.fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	if entry.Status != http.StatusOK {
		return entry, nil
	}

	key := cacheKey(r)
	p.caches.Open(p.partitionFor(r.URL.Path)).Put(key, entry)
	logger.Sugar.Debugf("Proxy: caching new resource %s", key)
	return entry, nil
}

func (p *Proxy) fetch(ctx context.Context, r *http.Request) (*Entry, error) {
	resp, err := p.fetcher.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.URL.Path, err)
	}
	return &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: p.now(),
	}, nil
}

// revalidate refreshes the cached copy of r in the background. Concurrent
// revalidations of the same key share one fetch.
func (p *Proxy) revalidate(r *http.Request) {
	if p.bgCtx.Err() != nil {
		return
	}
	key := cacheKey(r)
	req := r.Clone(p.bgCtx)

	p.bgWG.Add(1)
	go func() {
		defer p.bgWG.Done()
		_, err, _ := p.revalidations.Do(key, func() (any, error) {
			return p.fetchAndCache(p.bgCtx, req)
		})
		if err != nil && p.bgCtx.Err() == nil {
			logger.Sugar.Debugf("Proxy: background refresh of %s failed: %v", key, err)
		}
	}()
}

func (p *Proxy) serveOffline(w http.ResponseWriter, r *http.Request) {
	if acceptsMarkup(r) {
		if entry, ok := p.caches.Match(p.fallbackPath); ok {
			writeEntry(w, entry, "FALLBACK")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, offlineBody)
}

func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request) {
	resp, err := p.fetcher.Fetch(r.Context(), r)
	if err != nil {
		logger.Sugar.Warnf("Proxy: pass-through %s %s failed: %v", r.Method, r.URL.Path, err)
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// Wait blocks until background revalidations finish.
func (p *Proxy) Wait() {
	p.bgWG.Wait()
}

// Close cancels background revalidations and waits for them.
func (p *Proxy) Close() {
	p.bgCancel()
	p.bgWG.Wait()
}

func (p *Proxy) partitionFor(urlPath string) string {
	if p.manifest[urlPath] || staticExtensions[strings.ToLower(path.Ext(urlPath))] {
		return p.staticName
	}
	return p.dynamicName
}

func writeEntry(w http.ResponseWriter, e *Entry, cacheStatus string) {
	for k, v := range e.Header {
		w.Header()[k] = append([]string(nil), v...)
	}
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func acceptsMarkup(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// sameOrigin rejects absolute-form requests aimed at another host. r.Host
// mirrors an absolute-form target, so only the configured host counts.
func (p *Proxy) sameOrigin(r *http.Request) bool {
	if r.URL.Host == "" {
		return true
	}
	return p.host != "" && strings.EqualFold(r.URL.Host, p.host)
}
