// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LoadAll decodes every live wave at base frequency f, filling the
// payload cache. It checks ctx between entries and stops at the first
// entry that fails to decode. It returns the number of waves loaded.
func (s *Store) LoadAll(ctx context.Context, f float64) (int, error) {
	loaded := 0
	for signature := range s.List() {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if _, err := s.Retrieve(signature, f); err != nil {
			if errors.Is(err, ErrNotFound) {
				// Deleted since the snapshot.
				continue
			}
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// VerifyFailure is one entry that did not verify.
type VerifyFailure struct {
	Signature Signature
	Err       error
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Checked  int
	Failures []VerifyFailure
}

// Verify reads every live entry straight from the log, bypassing the
// cache, re-checks its signature and decodes it at base frequency f.
// Entries are checked in parallel, bounded by Options.VerifyConcurrency.
// Failing entries are collected in the report rather than stopping the
// run; the returned error is only set when ctx ends the run early.
func (s *Store) Verify(ctx context.Context, f float64) (VerifyReport, error) {
	signatures := slices.Collect(s.List())

	var mu sync.Mutex
	var report VerifyReport

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(s.verifyLimit)
	for _, signature := range signatures {
		if groupContext.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			_, _, err := s.decode("verify", signature, f)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if errors.Is(err, ErrClosed) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				report.Failures = append(report.Failures, VerifyFailure{Signature: signature, Err: err})
			}
			return nil
		})
	}
	err := group.Wait()

	slices.SortFunc(report.Failures, func(a, b VerifyFailure) int {
		return a.Signature.Compare(b.Signature)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err == nil && len(report.Failures) > 0 {
		s.logger.Warn("verify found corrupt entries", "checked", report.Checked, "failures", len(report.Failures))
	}
	return report, err
}
