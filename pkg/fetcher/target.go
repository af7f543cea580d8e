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
	"context"
	"encoding/hex"
	"hash"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	ucrypto "github.com/ota-uptane/primary/pkg/crypto"
	transport "github.com/ota-uptane/primary/pkg/transport/http"
	"github.com/ota-uptane/primary/pkg/uptane/data"
)

// Outcome is the terminal, non-error result of FetchTarget.
type Outcome string

const (
	Completed   Outcome = "Completed"
	Interrupted Outcome = "Interrupted"
)

// DefaultProgressInterval is how often ProgressFunc fires absent an
// explicit TargetOptions.ProgressIntervalBytes, per spec.md §4.4 "at
// least every N KiB".
const DefaultProgressInterval int64 = 64 * 1024

// DefaultMaxAttempts bounds retries on transient transport errors
// absent an explicit TargetOptions.MaxAttempts.
const DefaultMaxAttempts = 5

// ProgressFunc is invoked at least every ProgressIntervalBytes and on
// completion, reporting bytes received so far (including resumeFrom)
// and the target's total declared length. Returning true cancels the
// in-flight download with curl-equivalent aborted-by-callback
// semantics, yielding Interrupted.
type ProgressFunc func(bytesSoFar, total int64) (cancel bool)

// TargetOptions configures one FetchTarget call.
type TargetOptions struct {
	ProgressIntervalBytes int64
	MaxAttempts           int
}

func (o TargetOptions) interval() int64 {
	if o.ProgressIntervalBytes > 0 {
		return o.ProgressIntervalBytes
	}
	return DefaultProgressInterval
}

func (o TargetOptions) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return DefaultMaxAttempts
}

type cancelledErr struct{}

func (cancelledErr) Error() string { return "fetch: aborted by progress callback" }

// hashingSink forwards written bytes to dst while feeding running
// SHA-256/SHA-512 digests, and surfaces ProgressFunc at the configured
// cadence (spec.md §4.4).
type hashingSink struct {
	dst        io.Writer
	hashers    map[string]hash.Hash
	written    int64
	total      int64
	resumeFrom int64
	progress   ProgressFunc
	interval   int64
	lastReport int64
	cancelled  bool
}

func newHashingSink(dst io.Writer, total, resumeFrom int64, progress ProgressFunc, interval int64) *hashingSink {
	sha256, _ := ucrypto.NewHash(ucrypto.SHA256)
	sha512, _ := ucrypto.NewHash(ucrypto.SHA512)
	return &hashingSink{
		dst:        dst,
		hashers:    map[string]hash.Hash{"sha256": sha256, "sha512": sha512},
		total:      total,
		resumeFrom: resumeFrom,
		progress:   progress,
		interval:   interval,
	}
}

// primeFromPrefix feeds the bytes already on disk (everything before
// resumeFrom) into the running digests, so the hash this sink
// ultimately checks covers the whole target rather than just this
// attempt's continuation. It does not touch dst or written/progress
// accounting.
func (s *hashingSink) primeFromPrefix(prefix io.Reader) error {
	writers := make([]io.Writer, 0, len(s.hashers))
	for _, h := range s.hashers {
		writers = append(writers, h)
	}
	_, err := io.Copy(io.MultiWriter(writers...), prefix)
	return err
}

func (s *hashingSink) Write(p []byte) (int, error) {
	n, err := s.dst.Write(p)
	if n > 0 {
		for _, h := range s.hashers {
			h.Write(p[:n])
		}
		s.written += int64(n)
	}
	if err != nil {
		return n, err
	}
	atEnd := s.written+s.resumeFrom >= s.total
	if s.progress != nil && (s.written-s.lastReport >= s.interval || atEnd) {
		s.lastReport = s.written
		if s.progress(s.written+s.resumeFrom, s.total) {
			s.cancelled = true
			return n, cancelledErr{}
		}
	}
	return n, nil
}

func (s *hashingSink) digestsMatch(want data.Hashes) bool {
	for alg, wantHex := range want {
		h, ok := s.hashers[string(alg)]
		if !ok {
			continue
		}
		if hex.EncodeToString(h.Sum(nil)) != hex.EncodeToString(wantHex) {
			return false
		}
	}
	return true
}

// PrefixOpener reopens the bytes already written to the blob, from the
// start, so a resumed download's hash check covers the whole target
// and not just the current attempt's continuation. Pass nil when
// resumeFrom is 0.
type PrefixOpener func() (io.ReadCloser, error)

// FetchTarget streams target's content from the first of its
// candidate URIs that succeeds, starting at resumeFrom, into sink,
// per spec.md §4.4. Transient transport errors (connection reset,
// 5xx, timeout) are retried with exponential backoff and jitter up to
// TargetOptions.MaxAttempts; permanent errors (404, 401, or a hash/size
// mismatch discovered after a full read) are not retried.
func FetchTarget(ctx context.Context, client transport.Client, target data.ResolvedTarget, sink io.Writer, progress ProgressFunc, resumeFrom int64, prefix PrefixOpener, opts TargetOptions) (Outcome, error) {
	if len(target.URIs) == 0 {
		return "", newErr(Transport, "target %q declares no candidate uris", target.Filename)
	}

	interval := opts.interval()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.maxAttempts()-1)), ctx)

	var interrupted bool
	operation := func() error {
		// A retried attempt must write starting at resumeFrom again,
		// not wherever a prior attempt's partial write left the
		// cursor; seek back when the sink supports it (a plain
		// io.Writer with no Seek is assumed to start clean each call).
		if seeker, ok := sink.(io.Seeker); ok {
			if _, err := seeker.Seek(resumeFrom, io.SeekStart); err != nil {
				return backoff.Permanent(newErr(Transport, "seeking to resume offset: %v", err))
			}
		}
		if truncater, ok := sink.(interface{ Truncate(size int64) error }); ok {
			if err := truncater.Truncate(resumeFrom); err != nil {
				return backoff.Permanent(newErr(Transport, "truncating to resume offset: %v", err))
			}
		}
		hs := newHashingSink(sink, target.Length, resumeFrom, progress, interval)
		if resumeFrom > 0 && prefix != nil {
			rc, err := prefix()
			if err != nil {
				return backoff.Permanent(newErr(Transport, "reopening blob prefix: %v", err))
			}
			primeErr := hs.primeFromPrefix(rc)
			rc.Close()
			if primeErr != nil {
				return backoff.Permanent(newErr(Transport, "hashing blob prefix: %v", primeErr))
			}
		}
		var transientErr error

		for _, uri := range target.URIs {
			resp, err := client.Download(ctx, uri, hs, resumeFrom, nil)
			if err != nil {
				return backoff.Permanent(newErr(Transport, "%v", err))
			}
			if hs.cancelled {
				interrupted = true
				return backoff.Permanent(cancelledErr{})
			}
			if resp.Err != nil {
				transientErr = newErr(Transport, "downloading %s: %v", uri, resp.Err)
				continue
			}
			switch {
			case resp.Status == http.StatusNotFound:
				return backoff.Permanent(newErr(NotFound, "%s", uri))
			case resp.Status == http.StatusUnauthorized:
				return backoff.Permanent(newErr(Transport, "unauthorized fetching %s", uri))
			case resp.Status >= 500:
				transientErr = newErr(Transport, "server error %d fetching %s", resp.Status, uri)
				continue
			case !resp.Ok():
				return backoff.Permanent(newErr(Transport, "unexpected status %d fetching %s", resp.Status, uri))
			}

			if hs.written+resumeFrom != target.Length {
				return backoff.Permanent(newErr(SizeExceeded, "received %d bytes from offset %d, target declares length %d", hs.written, resumeFrom, target.Length))
			}
			if !hs.digestsMatch(target.Hashes) {
				return backoff.Permanent(newErr(SizeExceeded, "target %q hash mismatch after full read", target.Filename))
			}
			return nil
		}
		if transientErr != nil {
			return transientErr
		}
		return newErr(Transport, "no candidate uri for %q succeeded", target.Filename)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if interrupted {
			return Interrupted, newErr(Interrupted, "%v", err)
		}
		if ctx.Err() != nil {
			return Interrupted, newErr(Interrupted, "%v", ctx.Err())
		}
		return "", err
	}
	return Completed, nil
}
