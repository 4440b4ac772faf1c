package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

var errCrossOrigin = errors.New("request is not for the origin host")

// Fetcher performs a request against the site's origin.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*http.Response, error)
}

type FetcherFunc func(ctx context.Context, r *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	return f(ctx, r)
}

// HTTPFetcher forwards requests to a remote origin.
type HTTPFetcher struct {
	Origin *url.URL
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	if r.URL.IsAbs() && r.URL.Host != f.Origin.Host {
		return nil, errCrossOrigin
	}
	u := *f.Origin
	u.Path = strings.TrimRight(f.Origin.Path, "/") + "/" + strings.TrimLeft(r.URL.Path, "/")
	u.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	out.Header.Del("Connection")
	out.ContentLength = r.ContentLength

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(out)
}

// HandlerFetcher serves requests from an in-process handler, typically a
// file server over the site's static directory.
type HandlerFetcher struct {
	Handler http.Handler
}

func (f HandlerFetcher) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	f.Handler.ServeHTTP(rec, r.Clone(ctx))
	return rec.Result(), nil
}

// DirFetcher serves the site from a directory. A request for index.html is
// served as its directory index instead of the redirect http.FileServer sends.
func DirFetcher(dir string) HandlerFetcher {
	files := http.FileServer(http.Dir(dir))
	return HandlerFetcher{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/index.html") {
			r = r.Clone(r.Context())
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "index.html")
		}
		files.ServeHTTP(w, r)
	})}
}
