// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/wavefs/lib/wave"
	"github.com/bureau-foundation/wavefs/lib/wavestore"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Top-level directory names.
const (
	NamesDirectory      = "names"
	SignaturesDirectory = "signatures"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Store is the open wave store to expose. The mount does not
	// close it.
	Store *wavestore.Store

	// ReadOnly rejects every write with EROFS. Otherwise files under
	// names/ can be created, rewritten and unlinked.
	ReadOnly bool

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the wave filesystem at the configured mountpoint. The
// caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	mountOptions := fuse.MountOptions{
		FsName:     "wavefs",
		Name:       "wavefs",
		AllowOther: options.AllowOther,
	}
	if options.ReadOnly {
		mountOptions.Options = append(mountOptions.Options, "ro")
	}
	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions:    mountOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("wave filesystem mounted",
		"mountpoint", options.Mountpoint,
		"root", options.Store.Root(),
		"read_only", options.ReadOnly,
	)
	return server, nil
}

// rootNode is the filesystem root with its two fixed children.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	names := r.NewPersistentInode(ctx, &nameDirectoryNode{options: r.options}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	r.AddChild(NamesDirectory, names, true)

	signatures := r.NewPersistentInode(ctx, &signatureDirectoryNode{options: r.options}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	r.AddChild(SignaturesDirectory, signatures, true)
}

// nameDirectoryNode is "names/" or one of its subdirectories.
type nameDirectoryNode struct {
	gofuse.Inode
	options *Options
	prefix  string // empty for names/, "foo/" below it
}

var _ gofuse.InodeEmbedder = (*nameDirectoryNode)(nil)
var _ gofuse.NodeLookuper = (*nameDirectoryNode)(nil)
var _ gofuse.NodeReaddirer = (*nameDirectoryNode)(nil)
var _ gofuse.NodeCreater = (*nameDirectoryNode)(nil)
var _ gofuse.NodeUnlinker = (*nameDirectoryNode)(nil)
var _ gofuse.NodeMkdirer = (*nameDirectoryNode)(nil)
var _ gofuse.NodeRmdirer = (*nameDirectoryNode)(nil)

func (n *nameDirectoryNode) directoryMode() uint32 {
	if n.options.ReadOnly {
		return syscall.S_IFDIR | 0o555
	}
	return syscall.S_IFDIR | 0o755
}

// hasChildren reports whether any name lives below fullName/.
func (n *nameDirectoryNode) hasChildren(fullName string) bool {
	return len(n.options.Store.Names().List(fullName+"/")) > 0
}

func (n *nameDirectoryNode) subdirectory(ctx context.Context, fullName string, out *fuse.EntryOut) *gofuse.Inode {
	out.Mode = n.directoryMode()
	return n.NewInode(ctx, &nameDirectoryNode{
		options: n.options,
		prefix:  fullName + "/",
	}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
}

func (n *nameDirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	fullName := n.prefix + name

	// A directory takes precedence over a same-named leaf.
	if n.hasChildren(fullName) {
		return n.subdirectory(ctx, fullName, out), 0
	}

	record, ok := n.options.Store.Names().Get(fullName)
	if !ok {
		return nil, syscall.ENOENT
	}
	node := &waveFileNode{
		options:   n.options,
		label:     fullName,
		named:     true,
		stored:    true,
		signature: record.Target,
		frequency: record.Frequency,
		size:      record.Size,
		modified:  record.UpdatedAt,
	}
	node.fillAttr(&out.Attr)
	return n.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), 0
}

func (n *nameDirectoryNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	return &sliceDirStream{entries: childEntries(n.options.Store.Names().List(n.prefix), n.prefix)}, 0
}

// Create starts a new named wave. Nothing is stored until the file is
// flushed; an empty file stores an empty payload.
func (n *nameDirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	if n.options.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	fullName := n.prefix + name
	if err := wavestore.ValidateName(fullName); err != nil {
		return nil, nil, 0, syscall.EINVAL
	}
	if n.hasChildren(fullName) {
		return nil, nil, 0, syscall.EISDIR
	}

	store := n.options.Store
	node := &waveFileNode{
		options:   n.options,
		label:     fullName,
		named:     true,
		frequency: store.BaseFrequency(),
		modified:  time.Now(),
	}
	if record, ok := store.Names().Get(fullName); ok {
		if flags&syscall.O_EXCL != 0 {
			return nil, nil, 0, syscall.EEXIST
		}
		node.frequency = record.Frequency
	}

	handle := &writeHandle{node: node, dirty: true}
	node.fillAttr(&out.Attr)
	return n.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), handle, fuse.FOPEN_DIRECT_IO, 0
}

// Unlink removes a name. The wave it pointed at stays in the store.
func (n *nameDirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if n.options.ReadOnly {
		return syscall.EROFS
	}
	fullName := n.prefix + name
	err := n.options.Store.RemoveName(fullName)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, wavestore.ErrNotFound):
		if n.hasChildren(fullName) {
			return syscall.EISDIR
		}
		return syscall.ENOENT
	default:
		n.options.Logger.Error("removing name failed", "name", fullName, "error", err)
		return syscall.EIO
	}
}

// Mkdir returns a directory that exists only in the kernel's view
// until a name is created below it.
func (n *nameDirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if n.options.ReadOnly {
		return nil, syscall.EROFS
	}
	fullName := n.prefix + name
	if _, ok := n.options.Store.Names().Get(fullName); ok || n.hasChildren(fullName) {
		return nil, syscall.EEXIST
	}
	if err := wavestore.ValidateName(fullName); err != nil {
		return nil, syscall.EINVAL
	}
	return n.subdirectory(ctx, fullName, out), 0
}

func (n *nameDirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if n.options.ReadOnly {
		return syscall.EROFS
	}
	if n.hasChildren(n.prefix + name) {
		return syscall.ENOTEMPTY
	}
	return 0
}

// childEntries derives the immediate children of prefix from a sorted
// list of name records. A component that is both a leaf and a
// directory is listed once, as a directory.
func childEntries(records []wavestore.NameRecord, prefix string) []fuse.DirEntry {
	position := make(map[string]int)
	var entries []fuse.DirEntry

	for _, record := range records {
		relative := strings.TrimPrefix(record.Name, prefix)
		if relative == "" {
			continue
		}

		component := relative
		mode := uint32(syscall.S_IFREG)
		if slash := strings.IndexByte(relative, '/'); slash >= 0 {
			component = relative[:slash]
			mode = syscall.S_IFDIR
		}

		if index, seen := position[component]; seen {
			if mode == syscall.S_IFDIR {
				entries[index].Mode = mode
			}
			continue
		}
		position[component] = len(entries)
		entries = append(entries, fuse.DirEntry{Name: component, Mode: mode})
	}
	return entries
}

// signatureDirectoryNode is "signatures/". Listing shows full hex
// signatures; lookup accepts anything Store.Resolve does.
type signatureDirectoryNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*signatureDirectoryNode)(nil)
var _ gofuse.NodeLookuper = (*signatureDirectoryNode)(nil)
var _ gofuse.NodeReaddirer = (*signatureDirectoryNode)(nil)

func (s *signatureDirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	store := s.options.Store
	signature, err := store.Resolve(name)
	if err != nil {
		// Malformed, unknown and ambiguous references all read as
		// absent files.
		if errors.Is(err, wavestore.ErrClosed) {
			return nil, syscall.EIO
		}
		return nil, syscall.ENOENT
	}

	info, err := store.Stat(signature)
	if err != nil {
		if errors.Is(err, wavestore.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		s.options.Logger.Error("stat failed for signature lookup",
			"signature", signature.String(),
			"error", err,
		)
		return nil, syscall.EIO
	}

	node := &waveFileNode{
		options:   s.options,
		label:     name,
		stored:    true,
		signature: signature,
		frequency: store.BaseFrequency(),
		size:      info.PayloadLength,
		modified:  info.StoredAt,
	}
	node.fillAttr(&out.Attr)
	return s.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), 0
}

func (s *signatureDirectoryNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for signature := range s.options.Store.List() {
		entries = append(entries, fuse.DirEntry{
			Name: signature.String(),
			Mode: syscall.S_IFREG,
		})
	}
	return &sliceDirStream{entries: entries}, 0
}

// waveFileNode is one stored wave presented as a regular file. The
// payload is decoded when the file is opened. Files under names/ can
// be rewritten; each flush stores a new wave and repoints the name.
type waveFileNode struct {
	gofuse.Inode
	options   *Options
	label     string
	named     bool
	frequency float64

	mu        sync.Mutex
	stored    bool
	signature wavestore.Signature
	size      int64
	modified  time.Time
}

var _ gofuse.InodeEmbedder = (*waveFileNode)(nil)
var _ gofuse.NodeGetattrer = (*waveFileNode)(nil)
var _ gofuse.NodeSetattrer = (*waveFileNode)(nil)
var _ gofuse.NodeOpener = (*waveFileNode)(nil)

func (w *waveFileNode) writable() bool {
	return w.named && !w.options.ReadOnly
}

func (w *waveFileNode) fillAttr(out *fuse.Attr) {
	w.mu.Lock()
	size, modified := w.size, w.modified
	w.mu.Unlock()

	out.Mode = syscall.S_IFREG | 0o444
	if w.writable() {
		out.Mode = syscall.S_IFREG | 0o644
	}
	out.Size = uint64(size)
	out.Blocks = (out.Size + 511) / 512
	if !modified.IsZero() {
		out.SetTimes(nil, &modified, &modified)
	}
}

func (w *waveFileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	w.fillAttr(&out.Attr)
	if handle, ok := f.(*writeHandle); ok {
		out.Size = uint64(handle.size())
		out.Blocks = (out.Size + 511) / 512
	}
	return 0
}

// Setattr handles truncation. Other attribute changes are accepted and
// ignored.
func (w *waveFileNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if !w.writable() {
			return syscall.EROFS
		}
		if size > wave.MaxPayloadSize {
			return syscall.EFBIG
		}
		if handle, ok := f.(*writeHandle); ok {
			handle.truncate(int(size))
		} else {
			payload, errno := w.retrieve()
			if errno != 0 {
				return errno
			}
			if errno := w.commit(resize(payload, int(size))); errno != 0 {
				return errno
			}
		}
	}
	return w.Getattr(ctx, f, out)
}

// retrieve decodes the current payload. A file created but not yet
// flushed is empty.
func (w *waveFileNode) retrieve() ([]byte, syscall.Errno) {
	w.mu.Lock()
	stored, signature := w.stored, w.signature
	w.mu.Unlock()
	if !stored {
		return nil, 0
	}

	payload, err := w.options.Store.Retrieve(signature, w.frequency)
	if err != nil {
		if errors.Is(err, wavestore.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		w.options.Logger.Error("retrieve failed",
			"path", w.label,
			"signature", signature.String(),
			"error", err,
		)
		return nil, syscall.EIO
	}
	return payload, 0
}

// commit stores payload at the node's frequency and points the name at
// the new wave.
func (w *waveFileNode) commit(payload []byte) syscall.Errno {
	store := w.options.Store
	signature, err := store.Store(payload, nil, w.frequency)
	if err != nil {
		if errors.Is(err, wave.ErrPayloadTooLarge) {
			return syscall.EFBIG
		}
		w.options.Logger.Error("storing written wave failed", "path", w.label, "error", err)
		return syscall.EIO
	}
	record, err := store.SetName(w.label, signature, w.frequency)
	if err != nil {
		w.options.Logger.Error("naming written wave failed",
			"path", w.label,
			"signature", signature.String(),
			"error", err,
		)
		return syscall.EIO
	}

	w.mu.Lock()
	w.stored = true
	w.signature = signature
	w.size = record.Size
	w.modified = record.UpdatedAt
	w.mu.Unlock()

	w.options.Logger.Debug("wave written",
		"path", w.label,
		"signature", signature.String(),
		"bytes", len(payload),
	)
	return 0
}

func (w *waveFileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		if !w.writable() {
			return nil, 0, syscall.EROFS
		}
		handle := &writeHandle{node: w}
		if flags&syscall.O_TRUNC != 0 {
			handle.dirty = true
		} else {
			payload, errno := w.retrieve()
			if errno != 0 {
				return nil, 0, errno
			}
			handle.buffer = payload
		}
		return handle, fuse.FOPEN_DIRECT_IO, 0
	}

	payload, errno := w.retrieve()
	if errno != 0 {
		return nil, 0, errno
	}
	handle := &payloadHandle{payload: payload}
	if w.named {
		// A name can be repointed, so its pages may go stale.
		return handle, 0, 0
	}
	// A signature's content never changes.
	return handle, fuse.FOPEN_KEEP_CACHE, 0
}

// payloadHandle holds a decoded payload for the lifetime of one open.
type payloadHandle struct {
	payload []byte
}

var _ gofuse.FileReader = (*payloadHandle)(nil)

func (h *payloadHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return fuse.ReadResultData(window(h.payload, len(dest), off)), 0
}

// window returns up to length bytes of payload starting at off.
func window(payload []byte, length int, off int64) []byte {
	if off < 0 || off >= int64(len(payload)) {
		return nil
	}
	end := min(off+int64(length), int64(len(payload)))
	return payload[off:end]
}

// writeHandle buffers a rewrite of a named wave in memory and stores
// it on Flush. Every flush with new data stores a new wave; the old
// wave stays in the store.
type writeHandle struct {
	node *waveFileNode

	mu     sync.Mutex
	buffer []byte
	dirty  bool
}

var _ gofuse.FileReader = (*writeHandle)(nil)
var _ gofuse.FileWriter = (*writeHandle)(nil)
var _ gofuse.FileFlusher = (*writeHandle)(nil)
var _ gofuse.FileFsyncer = (*writeHandle)(nil)
var _ gofuse.FileReleaser = (*writeHandle)(nil)

func (h *writeHandle) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffer)
}

func (h *writeHandle) truncate(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffer = resize(h.buffer, size)
	h.dirty = true
}

func (h *writeHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fuse.ReadResultData(bytes.Clone(window(h.buffer, len(dest), off))), 0
}

// Write places data at offset, growing the buffer as needed.
func (h *writeHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	end := off + int64(len(data))
	if off < 0 || end > wave.MaxPayloadSize {
		return 0, syscall.EFBIG
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if end > int64(len(h.buffer)) {
		h.buffer = resize(h.buffer, int(end))
	}
	copy(h.buffer[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

// Flush stores the buffer if it changed since the last flush. Called
// on every close of a descriptor for this handle.
func (h *writeHandle) Flush(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return 0
	}
	if errno := h.node.commit(h.buffer); errno != 0 {
		return errno
	}
	h.dirty = false
	return 0
}

func (h *writeHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.Flush(ctx)
}

func (h *writeHandle) Release(ctx context.Context) syscall.Errno {
	return h.Flush(ctx)
}

// resize returns data cut or zero-extended to size bytes.
func resize(data []byte, size int) []byte {
	if size <= len(data) {
		return data[:size]
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
