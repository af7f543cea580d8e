// Copyright 2024 The go-uptane Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http implements the transport collaborator contract of
// spec.md §6, modeled on
// original_source/src/libaktualizr/http/httpinterface.h's
// get/post/put/download shape. TLS trust, client certs, proxying and
// bandwidth caps are this package's concern alone; the core never
// inspects them.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// Response is the result of a non-streaming request.
type Response struct {
	Status int
	Body   []byte
	Err    error
}

// Ok reports status ∈ [200,400) and no transport error, per spec.md §6.
func (r Response) Ok() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 400
}

// Client is the transport the fetcher and manifest-submission code
// consume. Retries on transient errors are the concern of the
// concrete implementation (RetryableClient below uses go-retryablehttp's
// default 5xx/connection-error policy).
type Client interface {
	Get(ctx context.Context, url string, maxBytes int64) (Response, error)
	Post(ctx context.Context, url, contentType string, body []byte) (Response, error)
	Put(ctx context.Context, url, contentType string, body []byte) (Response, error)
	Download(ctx context.Context, url string, sink io.Writer, offset int64, progress func(written int64)) (Response, error)
}

// RetryableClient is the default Client, backed by
// hashicorp/go-retryablehttp so transient connection resets and 5xx
// responses are retried with exponential backoff before the fetcher
// ever sees them.
type RetryableClient struct {
	http *retryablehttp.Client
}

// NewRetryableClient returns a RetryableClient with retryablehttp's
// default backoff policy and the given maximum retry attempt count.
func NewRetryableClient(maxRetries int) *RetryableClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.Logger = nil
	return &RetryableClient{http: rc}
}

func (c *RetryableClient) do(ctx context.Context, method, url, contentType string, body []byte) (*http.Response, error) {
	var req *retryablehttp.Request
	var err error
	if body != nil {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func (c *RetryableClient) Get(ctx context.Context, url string, maxBytes int64) (Response, error) {
	resp, err := c.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return Response{Err: err}, nil
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return Response{Status: resp.StatusCode, Err: err}, nil
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		return Response{Status: resp.StatusCode, Err: fmt.Errorf("transport: response exceeds %d bytes", maxBytes)}, nil
	}
	return Response{Status: resp.StatusCode, Body: b}, nil
}

func (c *RetryableClient) Post(ctx context.Context, url, contentType string, body []byte) (Response, error) {
	resp, err := c.do(ctx, http.MethodPost, url, contentType, body)
	if err != nil {
		return Response{Err: err}, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Response{Status: resp.StatusCode, Body: b}, nil
}

func (c *RetryableClient) Put(ctx context.Context, url, contentType string, body []byte) (Response, error) {
	resp, err := c.do(ctx, http.MethodPut, url, contentType, body)
	if err != nil {
		return Response{Err: err}, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Response{Status: resp.StatusCode, Body: b}, nil
}

// Download issues a ranged GET starting at offset and streams the body
// into sink, invoking progress as bytes arrive.
func (c *RetryableClient) Download(ctx context.Context, url string, sink io.Writer, offset int64, progress func(written int64)) (Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{Err: err}, nil
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Err: err}, nil
	}
	defer resp.Body.Close()

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return Response{Status: resp.StatusCode, Err: werr}, nil
			}
			written += int64(n)
			if progress != nil {
				progress(written)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Response{Status: resp.StatusCode, Err: rerr}, nil
		}
	}
	return Response{Status: resp.StatusCode}, nil
}

var _ Client = (*RetryableClient)(nil)
