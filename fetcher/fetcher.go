/***************************************************************
 *
 * Copyright (C) 2026, HTTPFS Project Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package fetcher issues single byte-range and metadata requests against a
// remote origin.  It carries no retry policy; callers that want retries
// wrap it.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/httpfsproject/httpfs/config"
	"github.com/httpfsproject/httpfs/metrics"
	"github.com/httpfsproject/httpfs/param"
)

var (
	// ErrNotFound indicates the remote resource does not exist.
	ErrNotFound = errors.New("remote resource not found")

	// ErrRemoteUnavailable indicates a connection or timeout failure
	// reaching the origin.
	ErrRemoteUnavailable = errors.New("remote origin unavailable")

	// ErrRemoteRejected indicates the origin answered with a non-success
	// status other than absence.
	ErrRemoteRejected = errors.New("remote origin rejected the request")

	// ErrMalformedMetadata indicates the origin's metadata response lacked
	// a usable size.
	ErrMalformedMetadata = errors.New("remote metadata is malformed")
)

// RangeFetcher fetches single byte ranges and resource metadata over HTTP.
type RangeFetcher struct {
	client *http.Client
}

// New constructs a RangeFetcher on the process-wide transport.  Redirects
// are followed (the http.Client default), matching origins that bounce
// metadata requests through a redirector.
func New() *RangeFetcher {
	return &RangeFetcher{
		client: &http.Client{
			Transport: config.GetTransport(),
			Timeout:   param.Client_RequestTimeout.GetDuration(),
		},
	}
}

// NewWithClient constructs a RangeFetcher with a caller-supplied client.
func NewWithClient(client *http.Client) *RangeFetcher {
	return &RangeFetcher{client: client}
}

// FetchRange issues one GET for the inclusive byte range [start, end] and
// returns the body.  Origins that ignore the Range header and answer 200
// with the full object are tolerated: the requested window is sliced out
// locally so callers always see at most the bytes they asked for.
func (rf *RangeFetcher) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, errors.Errorf("invalid byte range %d-%d", start, end)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct range request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	startTime := time.Now()
	resp, err := rf.client.Do(req)
	if err != nil {
		metrics.HttpfsRemoteFetchesTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrRemoteUnavailable, "range request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		metrics.HttpfsRemoteFetchesTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(err, "range request to %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.HttpfsRemoteFetchesTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrRemoteUnavailable, "reading range body from %s failed: %v", url, err)
	}
	metrics.HttpfsRemoteFetchesTotal.WithLabelValues("ok").Inc()
	log.Debugf("Fetched bytes %d-%d of %s (%d bytes, %s)", start, end, url, len(body), time.Since(startTime))

	if resp.StatusCode == http.StatusOK && int64(len(body)) > end-start+1 {
		// Full-content response; carve out the window we asked for.
		if start >= int64(len(body)) {
			return []byte{}, nil
		}
		last := end + 1
		if last > int64(len(body)) {
			last = int64(len(body))
		}
		body = body[start:last]
	}
	return body, nil
}

// Stat issues a HEAD-equivalent metadata request and returns the resource's
// byte length.  An absent or non-numeric Content-Length yields
// ErrMalformedMetadata since no attribute entry can be built from it.
func (rf *RangeFetcher) Stat(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to construct metadata request")
	}

	resp, err := rf.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(ErrRemoteUnavailable, "metadata request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		return 0, errors.Wrapf(err, "metadata request to %s returned status %d", url, resp.StatusCode)
	}

	if resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	// The client only populates ContentLength for well-formed values;
	// check the raw header to distinguish absent from non-numeric.
	raw := resp.Header.Get("Content-Length")
	if raw == "" {
		return 0, errors.Wrapf(ErrMalformedMetadata, "no Content-Length header from %s", url)
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size < 0 {
		return 0, errors.Wrapf(ErrMalformedMetadata, "invalid Content-Length %q from %s", raw, url)
	}
	return size, nil
}

func statusToError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return ErrNotFound
	default:
		return ErrRemoteRejected
	}
}
