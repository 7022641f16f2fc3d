// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/wavefs/lib/clock"
	"github.com/bureau-foundation/wavefs/lib/wave"
	"github.com/bureau-foundation/wavefs/lib/wavelog"
)

// Files and directories under a store root.
const (
	logFileName        = "wave.log"
	sideIndexFileName  = "index.wsi"
	descriptorFileName = "descriptor.cbor"
	namesDirectoryName = "names"
	lockFileName       = "LOCK"
)

// MaxMetadataSize bounds the metadata attached to one wave.
const MaxMetadataSize = 16 << 20

// maxStoredWave is the largest uncompressed wave a log entry can hold.
const maxStoredWave = wave.MaxPayloadSize * wave.SampleSize

// Options configures Open.
type Options struct {
	// BaseFrequency is recorded in the descriptor when the store is
	// created. Zero means wave.DefaultFrequency. An existing store
	// keeps the frequency it was created with.
	BaseFrequency float64

	// Compression applies to waves stored from now on ("none", "lz4",
	// "zstd", "bg8_lz4"). Empty uses the descriptor's setting. Existing
	// entries keep whatever they were written with.
	Compression string

	// CacheEntries bounds the decoded payload cache. Zero disables it.
	CacheEntries int

	// NoSync skips fsync after appends. See wavelog.Options.
	NoSync bool

	// RepairCorruption makes Open truncate the log at the first invalid
	// entry instead of failing with ErrIndexCorrupt. Every entry from
	// that point on is discarded.
	RepairCorruption bool

	// VerifyConcurrency bounds the goroutines Verify uses. Zero means 4.
	VerifyConcurrency int

	// Logger receives store events. Nil logs errors only, to stderr.
	Logger *slog.Logger

	// Registerer, when set, receives the store's prometheus collectors.
	Registerer prometheus.Registerer

	// Clock stamps log entries and name records. Nil uses the wall
	// clock.
	Clock clock.Clock
}

// Store is an open wave store. All methods are safe for concurrent
// use. Appends (Store, Delete) are serialized; lookups and reads run
// concurrently with each other.
type Store struct {
	root        string
	descriptor  Descriptor
	compression CompressionTag
	verifyLimit int

	logger  *slog.Logger
	clock   clock.Clock
	metrics *storeMetrics
	cache   *payloadCache
	names   *NameIndex

	// mu is held exclusively across append+index insert and for Close,
	// shared for index lookups.
	mu     sync.RWMutex
	closed bool
	log    *wavelog.Log
	index  *Index
	side   *sideIndex
	tail   *sideRecord
	lock   *os.File
}

// Open opens the store rooted at root, creating it if needed. It takes
// an exclusive lock on the store directory; a second Open of the same
// root fails with ErrLocked until the first store is closed.
func Open(root string, options Options) (*Store, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	storeClock := options.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", root, err)
	}
	lock, err := acquireLock(filepath.Join(root, lockFileName))
	if err != nil {
		return nil, err
	}

	store := &Store{
		root:        root,
		verifyLimit: options.VerifyConcurrency,
		logger:      logger,
		clock:       storeClock,
		lock:        lock,
	}
	if store.verifyLimit <= 0 {
		store.verifyLimit = 4
	}
	if err := store.open(options); err != nil {
		store.closeFiles()
		return nil, err
	}

	store.logger.Info("store opened",
		"root", root,
		"entries", store.index.Len(),
		"log_bytes", store.log.Size(),
		"base_frequency", store.descriptor.BaseFrequency,
		"compression", store.compression.String(),
	)
	return store, nil
}

func (s *Store) open(options Options) error {
	baseFrequency := options.BaseFrequency
	if baseFrequency == 0 {
		baseFrequency = wave.DefaultFrequency
	}
	if err := wave.ValidateFrequency(baseFrequency); err != nil {
		return err
	}
	compressionName := options.Compression
	if compressionName == "" {
		compressionName = CompressionNone.String()
	}
	if _, err := ParseCompressionTag(compressionName); err != nil {
		return err
	}

	descriptor, created, err := loadDescriptor(filepath.Join(s.root, descriptorFileName), Descriptor{
		FormatVersion: FormatVersion,
		BaseFrequency: baseFrequency,
		Compression:   compressionName,
		CreatedAt:     s.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.descriptor = descriptor
	if !created && options.BaseFrequency != 0 && options.BaseFrequency != descriptor.BaseFrequency {
		s.logger.Warn("ignoring configured base frequency for existing store",
			"configured", options.BaseFrequency,
			"store", descriptor.BaseFrequency,
		)
	}

	compressionName = options.Compression
	if compressionName == "" {
		compressionName = descriptor.Compression
	}
	s.compression, err = ParseCompressionTag(compressionName)
	if err != nil {
		return err
	}

	s.log, err = wavelog.Open(filepath.Join(s.root, logFileName), wavelog.Options{
		NoSync:           options.NoSync,
		RepairCorruption: options.RepairCorruption,
		Logger:           s.logger,
	})
	if err != nil {
		if errors.Is(err, wavelog.ErrVersionMismatch) {
			return fmt.Errorf("%w: %w", ErrVersionMismatch, err)
		}
		var frameErr *wavelog.FrameError
		if errors.As(err, &frameErr) {
			return &IndexCorruptError{Offset: frameErr.Offset, Reason: frameErr.Reason}
		}
		return err
	}

	if err := s.loadIndex(options.RepairCorruption); err != nil {
		return err
	}

	s.names, err = openNameIndex(filepath.Join(s.root, namesDirectoryName))
	if err != nil {
		return err
	}
	s.cache, err = newPayloadCache(options.CacheEntries)
	if err != nil {
		return fmt.Errorf("creating payload cache: %w", err)
	}

	s.metrics, err = newStoreMetrics(options.Registerer)
	if err != nil {
		return err
	}
	s.metrics.logBytes.Set(float64(s.log.Size()))
	s.metrics.indexEntries.Set(float64(s.index.Len()))
	return nil
}

// loadIndex restores the index from the side index and then applies
// any log entries the side index has not seen. If the side index is
// unusable the whole log is replayed.
func (s *Store) loadIndex(repair bool) error {
	sidePath := filepath.Join(s.root, sideIndexFileName)
	side, replay, err := loadSideIndex(sidePath, s.log)
	if err != nil {
		s.logger.Warn("side index unusable, rebuilding from log", "path", sidePath, "error", err)
		side, err = createSideIndex(sidePath, nil, nil)
		if err != nil {
			return err
		}
		replay = sideReplay{index: NewIndex(), watermark: wavelog.HeaderSize}
	}
	s.side = side
	s.index = replay.index
	s.tail = replay.tail

	caughtUp := 0
	_, err = replayLog(s.log, s.index, replay.watermark, func(event replayEvent) {
		s.recordApplied(sideRecord{Kind: event.Kind, Signature: event.Signature, Location: event.Location})
		caughtUp++
	})
	if caughtUp > 0 {
		s.logger.Info("indexed log entries", "entries", caughtUp, "from_offset", replay.watermark)
	}

	var corruptErr *IndexCorruptError
	if errors.As(err, &corruptErr) {
		if s.isFinalFrame(corruptErr.Offset) {
			// A crash can persist the file size before the body of the
			// last append.
			s.logger.Warn("truncating torn log entry",
				"offset", corruptErr.Offset,
				"reason", corruptErr.Reason,
				"discarded_bytes", s.log.Size()-corruptErr.Offset,
			)
			return s.log.Truncate(corruptErr.Offset)
		}
		if !repair {
			return err
		}
		s.logger.Warn("truncating log at invalid entry",
			"offset", corruptErr.Offset,
			"reason", corruptErr.Reason,
			"discarded_bytes", s.log.Size()-corruptErr.Offset,
		)
		return s.log.Truncate(corruptErr.Offset)
	}
	return err
}

// isFinalFrame reports whether a complete frame starts at offset and
// ends exactly at the committed end of the log.
func (s *Store) isFinalFrame(offset int64) bool {
	frame, err := s.log.ReadFrame(offset)
	return err == nil && frame.Next() == s.log.Size()
}

// recordApplied notes a committed log entry in the side index. Callers
// hold s.mu exclusively (or are still inside Open).
func (s *Store) recordApplied(record sideRecord) {
	s.tail = &record
	if err := s.side.append(record); err != nil {
		s.logger.Warn("side index append failed, it will be rebuilt", "error", err)
		s.side.invalidate()
	}
}

// Store encodes payload at base frequency f, appends it to the log and
// returns its signature. metadata nil means none; a non-nil empty
// slice is stored as present-but-empty. Storing the same payload and
// metadata at the same frequency twice returns the same signature
// without growing the log.
func (s *Store) Store(payload, metadata []byte, f float64) (Signature, error) {
	signature, err := s.store(payload, metadata, f)
	if err != nil {
		s.countStore(resultError)
	}
	return signature, err
}

func (s *Store) store(payload, metadata []byte, f float64) (Signature, error) {
	if len(metadata) > MaxMetadataSize {
		return Signature{}, fmt.Errorf("metadata is %d bytes, maximum is %d", len(metadata), MaxMetadataSize)
	}
	buffer, err := wave.Encode(payload, f)
	if err != nil {
		return Signature{}, err
	}
	waveBytes := buffer.Bytes()
	signature := Sign(waveBytes, metadata)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Signature{}, ErrClosed
	}
	_, exists := s.index.Lookup(signature)
	s.mu.RUnlock()
	if exists {
		s.countStore(resultDedup)
		return signature, nil
	}

	stored, compression, err := compressWave(waveBytes, s.compression)
	if err != nil {
		return Signature{}, fmt.Errorf("compressing wave %s: %w", signature.Short(), err)
	}
	body := encodeEntry(entry{
		Kind:          KindWave,
		Compression:   compression,
		Signature:     signature,
		PayloadLength: int64(len(payload)),
		StoredAt:      s.clock.Now(),
		Metadata:      metadata,
		Wave:          stored,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Signature{}, ErrClosed
	}
	// Another writer may have stored the same wave since the check
	// above.
	if _, exists := s.index.Lookup(signature); exists {
		s.countStore(resultDedup)
		return signature, nil
	}

	offset, err := s.log.Append(body)
	if err != nil {
		return Signature{}, fmt.Errorf("storing wave %s: %w", signature.Short(), err)
	}
	location := Location{
		Offset:        offset,
		Length:        wavelog.FrameHeaderSize + int64(len(body)),
		PayloadLength: int64(len(payload)),
		HasMetadata:   metadata != nil,
	}
	if err := s.index.Insert(signature, location); err != nil {
		return Signature{}, fmt.Errorf("indexing wave %s: %w", signature.Short(), err)
	}
	s.recordApplied(sideRecord{Kind: KindWave, Signature: signature, Location: location})

	s.countStore(resultStored)
	s.metrics.logBytes.Set(float64(s.log.Size()))
	s.metrics.indexEntries.Set(float64(s.index.Len()))
	s.logger.Debug("stored wave",
		"signature", signature.String(),
		"offset", offset,
		"bytes", len(payload),
		"compression", compression.String(),
	)
	return signature, nil
}

func (s *Store) countStore(result string) {
	if s.metrics != nil {
		s.metrics.stores.WithLabelValues(result).Inc()
	}
}

// Retrieve returns the payload stored under signature, decoded at base
// frequency f. It fails with ErrNotFound for an unknown signature and
// with ErrCorrupt when the entry does not validate, does not match its
// signature, or does not decode exactly at f. Decoding at a frequency
// other than the one used to store is reported as ErrCorrupt.
func (s *Store) Retrieve(signature Signature, f float64) ([]byte, error) {
	if err := wave.ValidateFrequency(f); err != nil {
		return nil, err
	}

	key := newCacheKey(signature, f)

	// A cached payload is only served while its signature is live.
	// Delete drops the index entry and the cached decodes under the
	// write lock.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	var cached []byte
	hit := false
	if _, live := s.index.Lookup(signature); live {
		cached, hit = s.cache.get(key)
	}
	s.mu.RUnlock()
	if hit {
		s.metrics.cache.WithLabelValues(resultHit).Inc()
		s.metrics.retrieves.WithLabelValues(resultOK).Inc()
		return bytes.Clone(cached), nil
	}
	if s.cache != nil {
		s.metrics.cache.WithLabelValues(resultMiss).Inc()
	}

	start := time.Now()
	payload, location, err := s.decode("retrieve", signature, f)
	s.metrics.retrieveDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		s.metrics.retrieves.WithLabelValues(resultOK).Inc()
	case errors.Is(err, ErrNotFound):
		s.metrics.retrieves.WithLabelValues(resultNotFound).Inc()
		return nil, err
	case errors.Is(err, ErrCorrupt):
		s.metrics.retrieves.WithLabelValues(resultCorrupt).Inc()
		s.logger.Warn("corrupt entry", "signature", signature.String(), "error", err)
		return nil, err
	default:
		s.metrics.retrieves.WithLabelValues(resultError).Inc()
		return nil, err
	}

	// The decode ran unlocked; a Delete may have landed since.
	s.mu.RLock()
	if current, live := s.index.Lookup(signature); live && current == location && !s.closed {
		s.cache.add(key, payload)
	}
	s.mu.RUnlock()
	return bytes.Clone(payload), nil
}

// decode reads, verifies and decodes one entry from the log, bypassing
// the cache. It also returns the location the entry was read from.
func (s *Store) decode(op string, signature Signature, f float64) ([]byte, Location, error) {
	loaded, location, waveBytes, err := s.load(op, signature)
	if err != nil {
		return nil, location, err
	}
	payload, err := wave.DecodeBytes(waveBytes, f, int(loaded.PayloadLength))
	if err != nil {
		return nil, location, corrupt(op, signature, location.Offset, err)
	}
	return payload, location, nil
}

// load locates signature, reads its entry, decompresses the wave and
// re-verifies the signature over the wave and metadata.
func (s *Store) load(op string, signature Signature) (entry, Location, []byte, error) {
	location, err := s.lookup(op, signature)
	if err != nil {
		return entry{}, Location{}, nil, err
	}
	parsed, err := s.readEntry(op, signature, location)
	if err != nil {
		return entry{}, location, nil, err
	}

	waveBytes, err := decompressWave(parsed.Wave, parsed.Compression, int(parsed.PayloadLength)*wave.SampleSize)
	if err != nil {
		return entry{}, location, nil, corrupt(op, signature, location.Offset, err)
	}
	if Sign(waveBytes, parsed.Metadata) != signature {
		return entry{}, location, nil, corrupt(op, signature, location.Offset,
			errors.New("stored wave and metadata do not match the signature"))
	}
	return parsed, location, waveBytes, nil
}

func (s *Store) lookup(op string, signature Signature) (Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Location{}, ErrClosed
	}
	location, ok := s.index.Lookup(signature)
	if !ok {
		return Location{}, notFound(op, signature)
	}
	return location, nil
}

// readEntry reads and validates the entry at location without
// verifying the signature.
func (s *Store) readEntry(op string, signature Signature, location Location) (entry, error) {
	frame, err := s.log.ReadFrame(location.Offset)
	if err != nil {
		if errors.Is(err, wavelog.ErrClosed) {
			return entry{}, ErrClosed
		}
		return entry{}, corrupt(op, signature, location.Offset, err)
	}
	if frame.Length != location.Length {
		return entry{}, corrupt(op, signature, location.Offset,
			fmt.Errorf("frame is %d bytes, index says %d", frame.Length, location.Length))
	}
	parsed, err := parseEntry(frame.Body)
	if err != nil {
		return entry{}, corrupt(op, signature, location.Offset, err)
	}
	if parsed.Kind != KindWave || parsed.Signature != signature {
		return entry{}, corrupt(op, signature, location.Offset,
			fmt.Errorf("entry is a %s for %s", parsed.Kind, parsed.Signature.Short()))
	}
	return parsed, nil
}

// List returns the signatures of every live wave, sorted, as of the
// call. The sequence can be ranged over more than once and always
// yields the same snapshot.
func (s *Store) List() iter.Seq[Signature] {
	s.mu.RLock()
	var signatures []Signature
	if !s.closed {
		signatures = s.index.Signatures()
	}
	s.mu.RUnlock()

	return func(yield func(Signature) bool) {
		for _, signature := range signatures {
			if !yield(signature) {
				return
			}
		}
	}
}

// Delete appends a tombstone for signature, removes it from the index
// and drops every name that points at it. The wave bytes stay in the
// log.
func (s *Store) Delete(signature Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.index.Lookup(signature); !ok {
		return notFound("delete", signature)
	}

	body := encodeEntry(entry{
		Kind:      KindTombstone,
		Signature: signature,
		StoredAt:  s.clock.Now(),
	})
	offset, err := s.log.Append(body)
	if err != nil {
		return fmt.Errorf("deleting wave %s: %w", signature.Short(), err)
	}
	s.index.Remove(signature)
	s.recordApplied(sideRecord{
		Kind:      KindTombstone,
		Signature: signature,
		Location:  Location{Offset: offset, Length: wavelog.FrameHeaderSize + int64(len(body))},
	})
	s.cache.forget(signature)

	removed, err := s.names.removeTarget(signature)
	if err != nil {
		s.logger.Warn("removing names of deleted wave failed", "signature", signature.String(), "error", err)
	}

	s.metrics.deletes.Inc()
	s.metrics.logBytes.Set(float64(s.log.Size()))
	s.metrics.indexEntries.Set(float64(s.index.Len()))
	s.logger.Debug("deleted wave", "signature", signature.String(), "offset", offset, "names", removed)
	return nil
}

// Metadata returns the metadata stored with signature: nil when the
// wave was stored without metadata, a non-nil (possibly empty) slice
// otherwise. The entry's signature is verified before returning.
func (s *Store) Metadata(signature Signature) ([]byte, error) {
	loaded, _, _, err := s.load("metadata", signature)
	if err != nil {
		return nil, err
	}
	if loaded.Metadata == nil {
		return nil, nil
	}
	return bytes.Clone(loaded.Metadata), nil
}

// EntryInfo describes one stored wave.
type EntryInfo struct {
	Signature      Signature      `json:"signature"`
	Offset         int64          `json:"offset"`
	FrameLength    int64          `json:"frame_length"`
	PayloadLength  int64          `json:"payload_length"`
	StoredLength   int64          `json:"stored_length"`
	Compression    CompressionTag `json:"compression"`
	HasMetadata    bool           `json:"has_metadata"`
	MetadataLength int64          `json:"metadata_length"`
	StoredAt       time.Time      `json:"stored_at"`
}

// Stat describes the entry for signature from its header. It does not
// verify the signature; use Retrieve or Verify for that.
func (s *Store) Stat(signature Signature) (EntryInfo, error) {
	location, err := s.lookup("stat", signature)
	if err != nil {
		return EntryInfo{}, err
	}
	parsed, err := s.readEntry("stat", signature, location)
	if err != nil {
		return EntryInfo{}, err
	}
	return EntryInfo{
		Signature:      signature,
		Offset:         location.Offset,
		FrameLength:    location.Length,
		PayloadLength:  parsed.PayloadLength,
		StoredLength:   int64(len(parsed.Wave)),
		Compression:    parsed.Compression,
		HasMetadata:    parsed.Metadata != nil,
		MetadataLength: int64(len(parsed.Metadata)),
		StoredAt:       parsed.StoredAt,
	}, nil
}

// Stats summarizes the store.
type Stats struct {
	Entries       int     `json:"entries"`
	Names         int     `json:"names"`
	LogBytes      int64   `json:"log_bytes"`
	CachedEntries int     `json:"cached_entries"`
	BaseFrequency float64 `json:"base_frequency"`
	Compression   string  `json:"compression"`
}

// Stats returns current store totals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entries:       s.index.Len(),
		Names:         s.names.Len(),
		LogBytes:      s.log.Size(),
		CachedEntries: s.cache.len(),
		BaseFrequency: s.descriptor.BaseFrequency,
		Compression:   s.compression.String(),
	}
}

// BaseFrequency returns the store's configured base frequency.
func (s *Store) BaseFrequency() float64 { return s.descriptor.BaseFrequency }

// Descriptor returns the store descriptor.
func (s *Store) Descriptor() Descriptor { return s.descriptor }

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Names returns the store's name index for lookups. Names are changed
// through SetName and RemoveName.
func (s *Store) Names() *NameIndex { return s.names }

// SetName points name at a stored wave. f is the frequency the wave
// was stored at and is used when the name is read back.
func (s *Store) SetName(name string, signature Signature, f float64) (NameRecord, error) {
	if err := wave.ValidateFrequency(f); err != nil {
		return NameRecord{}, err
	}
	location, err := s.lookup("name", signature)
	if err != nil {
		return NameRecord{}, err
	}
	return s.names.set(NameRecord{
		Name:      name,
		Target:    signature,
		Frequency: f,
		Size:      location.PayloadLength,
	}, s.clock.Now().UTC())
}

// RemoveName deletes a name. The wave it pointed at is not affected.
func (s *Store) RemoveName(name string) error {
	removed, err := s.names.remove(name)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("name %q: %w", name, ErrNotFound)
	}
	return nil
}

// Resolve turns a reference into a signature. It accepts the full
// 64-character hex form, a "wav-" short reference, or any unambiguous
// hex prefix of a stored signature.
func (s *Store) Resolve(reference string) (Signature, error) {
	if len(reference) == 2*len(Signature{}) {
		if signature, err := ParseSignature(strings.ToLower(reference)); err == nil {
			return signature, nil
		}
	}
	prefix, err := parseSignaturePrefix(reference)
	if err != nil {
		return Signature{}, err
	}

	var match Signature
	matches := 0
	for signature := range s.List() {
		if strings.HasPrefix(signature.String(), prefix) {
			match = signature
			matches++
		}
	}
	switch matches {
	case 0:
		return Signature{}, fmt.Errorf("reference %q: %w", reference, ErrNotFound)
	case 1:
		return match, nil
	default:
		return Signature{}, fmt.Errorf("reference %q matches %d waves: %w", reference, matches, ErrAmbiguous)
	}
}

// Close writes a compact side index, closes the log and releases the
// store lock. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.side.compact(s.index.snapshot(), s.tail); err != nil {
		errs = append(errs, fmt.Errorf("compacting side index: %w", err))
	}
	errs = append(errs, s.closeFiles())
	s.logger.Info("store closed", "root", s.root, "entries", s.index.Len())
	return errors.Join(errs...)
}

// closeFiles releases whatever Open managed to acquire.
func (s *Store) closeFiles() error {
	var errs []error
	if s.side != nil {
		errs = append(errs, s.side.close())
	}
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Close())
	}
	return errors.Join(errs...)
}
