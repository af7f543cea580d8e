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

package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transport "github.com/ota-uptane/primary/pkg/transport/http"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// fakeClient serves a scripted sequence of Download attempts, so
// retry/backoff logic can be exercised without a real server.
type fakeClient struct {
	attempts []func(sink io.Writer, offset int64) (transport.Response, error)
	calls    int
}

func (f *fakeClient) Get(context.Context, string, int64) (transport.Response, error) {
	return transport.Response{}, nil
}
func (f *fakeClient) Post(context.Context, string, string, []byte) (transport.Response, error) {
	return transport.Response{}, nil
}
func (f *fakeClient) Put(context.Context, string, string, []byte) (transport.Response, error) {
	return transport.Response{}, nil
}
func (f *fakeClient) Download(_ context.Context, _ string, sink io.Writer, offset int64, _ func(int64)) (transport.Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.attempts) {
		i = len(f.attempts) - 1
	}
	return f.attempts[i](sink, offset)
}

func hashesOf(content []byte) data.Hashes {
	s256 := sha256.Sum256(content)
	s512 := sha512.Sum512(content)
	return data.Hashes{"sha256": s256[:], "sha512": s512[:]}
}

func TestFetchTarget_Success(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(sink io.Writer, offset int64) (transport.Response, error) {
			_, err := sink.Write(content[offset:])
			require.NoError(t, err)
			return transport.Response{Status: http.StatusOK}, nil
		},
	}}

	target := data.ResolvedTarget{Filename: "firmware.bin", Length: int64(len(content)), Hashes: hashesOf(content), URIs: []string{"https://example.com/firmware.bin"}}

	var out bytes.Buffer
	outcome, err := FetchTarget(context.Background(), client, target, &out, nil, 0, nil, TargetOptions{})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, content, out.Bytes())
}

func TestFetchTarget_NotFoundIsPermanent(t *testing.T) {
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(io.Writer, int64) (transport.Response, error) {
			return transport.Response{Status: http.StatusNotFound}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "missing.bin", Length: 10, URIs: []string{"https://example.com/missing.bin"}}

	var out bytes.Buffer
	_, err := FetchTarget(context.Background(), client, target, &out, nil, 0, nil, TargetOptions{MaxAttempts: 3})
	require.Error(t, err)
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, 1, client.calls, "a permanent error must not be retried")
}

func TestFetchTarget_RetriesTransientThenSucceeds(t *testing.T) {
	content := []byte("payload")
	calls := 0
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(io.Writer, int64) (transport.Response, error) {
			calls++
			return transport.Response{Status: http.StatusServiceUnavailable}, nil
		},
		func(sink io.Writer, offset int64) (transport.Response, error) {
			calls++
			_, err := sink.Write(content[offset:])
			require.NoError(t, err)
			return transport.Response{Status: http.StatusOK}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "ok.bin", Length: int64(len(content)), Hashes: hashesOf(content), URIs: []string{"https://example.com/ok.bin"}}

	var out bytes.Buffer
	outcome, err := FetchTarget(context.Background(), client, target, &out, nil, 0, nil, TargetOptions{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 2, calls)
}

func TestFetchTarget_HashMismatchIsSizeExceeded(t *testing.T) {
	content := []byte("real content")
	wrongHashes := hashesOf([]byte("different content, same length!!"))
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(sink io.Writer, offset int64) (transport.Response, error) {
			_, err := sink.Write(content[offset:])
			require.NoError(t, err)
			return transport.Response{Status: http.StatusOK}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "tampered.bin", Length: int64(len(content)), Hashes: wrongHashes, URIs: []string{"https://example.com/tampered.bin"}}

	var out bytes.Buffer
	_, err := FetchTarget(context.Background(), client, target, &out, nil, 0, nil, TargetOptions{MaxAttempts: 3})
	require.Error(t, err)
	assert.Equal(t, SizeExceeded, KindOf(err))
	assert.Equal(t, 1, client.calls, "a hash mismatch must not be retried")
}

func TestFetchTarget_ResumesFromOffset(t *testing.T) {
	content := []byte("0123456789")
	resumeFrom := int64(4)
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(sink io.Writer, offset int64) (transport.Response, error) {
			assert.Equal(t, resumeFrom, offset)
			_, err := sink.Write(content[offset:])
			require.NoError(t, err)
			return transport.Response{Status: http.StatusOK}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "resume.bin", Length: int64(len(content)), Hashes: hashesOf(content), URIs: []string{"https://example.com/resume.bin"}}

	// The declared hash covers the whole 10-byte file, so FetchTarget
	// must prime the running digests from the already-on-disk prefix
	// before hashing what this attempt writes, or the check below would
	// validate only the last 6 bytes against a whole-file hash.
	prefix := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content[:resumeFrom])), nil
	}

	var out bytes.Buffer
	outcome, err := FetchTarget(context.Background(), client, target, &out, nil, resumeFrom, prefix, TargetOptions{})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, content[resumeFrom:], out.Bytes())
}

// TestFetchTarget_RetryReseeksSeekableSink guards against a retried
// attempt continuing to write wherever a prior attempt's partial write
// left the file cursor: the first attempt writes a long wrong-length
// payload past resumeFrom before the server drops the connection, and
// the second attempt must overwrite from resumeFrom rather than append.
func TestFetchTarget_RetryReseeksSeekableSink(t *testing.T) {
	content := []byte("0123456789")
	resumeFrom := int64(4)
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(sink io.Writer, offset int64) (transport.Response, error) {
			_, writeErr := sink.Write([]byte("wrong tail that is much longer than the real one"))
			require.NoError(t, writeErr)
			return transport.Response{Status: http.StatusOK, Err: fmt.Errorf("connection reset")}, nil
		},
		func(sink io.Writer, offset int64) (transport.Response, error) {
			_, err := sink.Write(content[offset:])
			require.NoError(t, err)
			return transport.Response{Status: http.StatusOK}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "resume.bin", Length: int64(len(content)), Hashes: hashesOf(content), URIs: []string{"https://example.com/resume.bin"}}
	prefix := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content[:resumeFrom])), nil
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "resume.bin")
	require.NoError(t, os.WriteFile(path, content[:resumeFrom], 0o600))
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(resumeFrom, io.SeekStart)
	require.NoError(t, err)

	outcome, err := FetchTarget(context.Background(), client, target, f, nil, resumeFrom, prefix, TargetOptions{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got, "retry must overwrite the failed attempt's partial write, not append to it")
}

func TestFetchTarget_ProgressCancels(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 1000)
	client := &fakeClient{attempts: []func(io.Writer, int64) (transport.Response, error){
		func(sink io.Writer, offset int64) (transport.Response, error) {
			// A real transport.Client surfaces a sink write error
			// through Response.Err, not the call's own error return
			// (see transport/http.RetryableClient.Download) — mirror
			// that here so FetchTarget observes hs.cancelled the same
			// way it would against the real client.
			_, err := sink.Write(content[offset:])
			return transport.Response{Status: http.StatusOK, Err: err}, nil
		},
	}}
	target := data.ResolvedTarget{Filename: "big.bin", Length: int64(len(content)), Hashes: hashesOf(content), URIs: []string{"https://example.com/big.bin"}}

	var out bytes.Buffer
	outcome, err := FetchTarget(context.Background(), client, target, &out, func(int64, int64) bool { return true }, 0, nil, TargetOptions{ProgressIntervalBytes: 1})
	require.Error(t, err)
	assert.Equal(t, Interrupted, outcome)
}
