// Package shadercache keeps compiled shader blobs keyed by a fingerprint of
// their source and pipeline state, and persists them across runs.
//
// Blobs live in a byte-bounded LRU. A cache is created against a Logger and
// may be attached to a Device, after which it must be destroyed before that
// Device.
package shadercache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/vidpipe/internal/cache"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// FormatVersion is folded into every fingerprint and written to cache files.
// Bump it whenever compiled output for the same input may change.
const FormatVersion uint32 = 1

// DefaultMaxSize is used when New is given a non-positive size.
const DefaultMaxSize = 8 << 20

// Fingerprint identifies a compiled shader.
type Fingerprint [sha256.Size]byte

// String returns the first bytes of the fingerprint in hex.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:6]) }

// Key is everything that determines a compiled shader.
type Key struct {
	Label       string
	WGSL        string
	EntryPoints []string
	// State is the pipeline state the module is compiled for, in any stable
	// textual form.
	State string
}

// Fingerprint hashes the format version, entry points, source and state.
// The label does not contribute.
func (k Key) Fingerprint() Fingerprint {
	h := sha256.New()
	var buf [4]byte
	put := func(s string) {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	binary.LittleEndian.PutUint32(buf[:], FormatVersion)
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], uint32(len(k.EntryPoints)))
	h.Write(buf[:])
	for _, ep := range k.EntryPoints {
		put(ep)
	}
	put(k.WGSL)
	put(k.State)

	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// Option configures New.
type Option func(*options)

type options struct {
	compile naga.CompileOptions
}

// WithCompileOptions overrides naga.DefaultOptions for misses.
func WithCompileOptions(o naga.CompileOptions) Option {
	return func(opts *options) { opts.compile = o }
}

// Stats reports cache activity.
type Stats struct {
	Entries       int
	Bytes         int64
	MaxSize       int64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	HitRate       float64
	CompileErrors uint64
	Loaded        int
}

// Cache is a compiled shader store. Safe for concurrent use.
type Cache struct {
	node  *lifecycle.Node
	log   *slog.Logger
	blobs *cache.Cache[Fingerprint, []byte]
	opts  options

	mu            sync.Mutex
	device        *lifecycle.Node
	compileErrors uint64
	loaded        int
	destroyed     bool
}

// New creates an empty cache holding at most maxSize bytes of blobs.
func New(logger *vlog.Logger, maxSize int64, opts ...Option) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	o := options{compile: naga.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}

	graph := lifecycle.GraphOf(logger)
	if graph == nil {
		graph = lifecycle.NewGraph()
	}
	node, err := graph.Add("shadercache", logger.Node())
	if err != nil {
		return nil, fmt.Errorf("shadercache: create: %w", err)
	}

	return &Cache{
		node:  node,
		log:   resourceLogger(logger, "shadercache"),
		blobs: cache.New[Fingerprint, []byte](maxSize, func(b []byte) int64 { return int64(len(b)) }),
		opts:  o,
	}, nil
}

// Node returns the cache's lifecycle node.
func (c *Cache) Node() *lifecycle.Node {
	if c == nil {
		return nil
	}
	return c.node
}

// Attach makes the cache a dependent of device, replacing any previous
// attachment.
func (c *Cache) Attach(device lifecycle.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	dn := device.Node()
	if c.device == dn {
		return nil
	}
	if err := c.node.Attach(dn); err != nil {
		return fmt.Errorf("shadercache: attach: %w", err)
	}
	if c.device != nil {
		c.node.Detach(c.device)
	}
	c.device = dn
	return nil
}

// Detach drops the device attachment, if any.
func (c *Cache) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.node.Detach(c.device)
		c.device = nil
	}
}

// Attached reports whether the cache is attached to a device.
func (c *Cache) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil
}

// Lookup returns the blob stored under fp.
func (c *Cache) Lookup(fp Fingerprint) ([]byte, bool) {
	return c.blobs.Get(fp)
}

// Store keeps blob under fp. Blobs larger than the cache are dropped.
func (c *Cache) Store(fp Fingerprint, blob []byte) bool {
	return c.blobs.Set(fp, blob)
}

// Module returns SPIR-V for k, compiling it with naga on a miss. hit reports
// whether the blob came from the cache.
func (c *Cache) Module(k Key) (spirv []uint32, hit bool, err error) {
	if c.isDestroyed() {
		return nil, false, ErrDestroyed
	}
	fp := k.Fingerprint()
	blob, hit, err := c.blobs.GetOrLoad(fp, func() ([]byte, error) {
		return naga.CompileWithOptions(k.WGSL, c.opts.compile)
	})
	if err != nil {
		c.mu.Lock()
		c.compileErrors++
		c.mu.Unlock()
		c.log.Warn("shader compile failed", "label", k.Label, "fingerprint", fp.String(), "err", err)
		return nil, false, fmt.Errorf("shadercache: compile %q: %w", k.Label, err)
	}
	if !hit {
		c.log.Debug("shader compiled", "label", k.Label, "fingerprint", fp.String(), "bytes", len(blob))
	}
	return Words(blob), hit, nil
}

// Words reinterprets a little-endian SPIR-V byte stream as words. Trailing
// bytes that do not fill a word are ignored.
func Words(blob []byte) []uint32 {
	words := make([]uint32, len(blob)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	return words
}

// Len returns the number of cached blobs.
func (c *Cache) Len() int { return c.blobs.Len() }

// Clear drops every blob.
func (c *Cache) Clear() { c.blobs.Clear() }

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	s := c.blobs.Stats()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:       s.Len,
		Bytes:         s.Cost,
		MaxSize:       s.Budget,
		Hits:          s.Hits,
		Misses:        s.Misses,
		Evictions:     s.Evictions,
		HitRate:       s.HitRate,
		CompileErrors: c.compileErrors,
		Loaded:        c.loaded,
	}
}

func (c *Cache) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Destroy releases the cache. Destroy is idempotent. The cache must be
// destroyed, or detached, before the device it is attached to.
func (c *Cache) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.node.Release()
	c.destroyed = true
	c.device = nil
	c.blobs.Clear()
}
