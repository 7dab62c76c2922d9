/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fetch implements C1, the redirecting HTTP fetcher: it issues a
// single logical GET against a URI, follows redirects up to a bounded
// number of hops, and hands the caller the response body as a lazy
// stream. It is grounded on the teacher's pkg/httputil.StatsTransport
// (a RoundTripper wrapper that counts and times requests) and uses
// hashicorp/go-retryablehttp as the underlying client, the way the
// teacher's pkg/client layers its own behavior on top of a shared
// *http.Client.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tcnksm/go-httpstat"

	"packmirror.dev/packmirror/internal/pmerrors"
)

// MaxRedirects bounds the number of hops a single fetch will follow
// before returning ErrRedirectLoop, per spec.md §4.1's recommendation.
const MaxRedirects = 10

// Fetcher issues GET requests and follows redirects manually so that
// every hop is always re-issued as GET, regardless of the status code
// that triggered it (spec.md §4.1: "the method is always GET").
type Fetcher struct {
	logger *log.Logger
	client *http.Client
	stats  *StatsTransport
}

// StatsTransport wraps another RoundTripper and counts the requests it
// performs, exactly like the teacher's pkg/httputil.StatsTransport.
type StatsTransport struct {
	mu   sync.Mutex
	reqs int

	Transport http.RoundTripper
}

// Requests returns the number of RoundTrips performed so far.
func (t *StatsTransport) Requests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reqs
}

func (t *StatsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.reqs++
	t.mu.Unlock()

	rt := t.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

// NewFetcher returns a Fetcher that logs through logger. retryablehttp's
// retry machinery is disabled (RetryMax: 0) per spec.md §1's non-goal of
// "no retry budget beyond a single redirect chain" — the library is used
// here purely for its connection-pooling HTTPClient, not its backoff.
func NewFetcher(logger *log.Logger) *Fetcher {
	stats := &StatsTransport{Transport: http.DefaultTransport}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 0
	rc.HTTPClient.Transport = stats
	// We drive redirects ourselves below, so the stock client must not.
	rc.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Fetcher{
		logger: logger,
		client: rc.HTTPClient,
		stats:  stats,
	}
}

// Requests returns the number of underlying HTTP round trips performed
// by this Fetcher so far, across every Fetch call. Tests use this to
// assert idempotent reruns (spec.md §8 property 1 and scenario S4) issue
// zero new requests.
func (f *Fetcher) Requests() int {
	return f.stats.Requests()
}

// Fetch issues a GET against uri, following 301/302/303/307/308
// redirects (via the Location header) up to MaxRedirects hops. The
// returned ReadCloser is the lazy byte stream of the final response
// body; the caller must Close it.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (io.ReadCloser, error) {
	var result httpstat.Result
	ctx = httpstat.WithHTTPStat(ctx, &result)

	next := uri
	for hop := 0; ; hop++ {
		if hop > MaxRedirects {
			return nil, fmt.Errorf("fetch %s: %w: exceeded %d hops", uri, pmerrors.ErrRedirectLoop, MaxRedirects)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w: %v", uri, pmerrors.ErrNetwork, err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w: %v", uri, pmerrors.ErrNetwork, err)
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("fetch %s: %w: redirect status %d with no Location header", uri, pmerrors.ErrHTTPStatus, resp.StatusCode)
			}
			redirected, err := req.URL.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w: bad Location %q: %v", uri, pmerrors.ErrNetwork, loc, err)
			}
			next = redirected.String()
			f.logger.Printf("fetch: %s -> %d -> %s", uri, resp.StatusCode, next)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %w: status %d", uri, pmerrors.ErrHTTPStatus, resp.StatusCode)
		}

		end := time.Now()
		result.End(end)
		f.logger.Printf("fetch: %s complete in %v (%d hop(s))", uri, result.Total(end), hop)
		return resp.Body, nil
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
