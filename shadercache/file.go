package shadercache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
)

// magic opens every cache file.
var magic = [4]byte{'V', 'P', 'S', 'C'}

const headerSize = 12 // magic, version, count

// maxBlob bounds a single entry read back from disk.
const maxBlob = 64 << 20

// Load merges the entries of the cache file at path. Loading is best effort:
// a missing, truncated, corrupt or foreign-version file leaves the cache as
// it was and is only logged. Load returns the number of entries merged.
func (c *Cache) Load(path string) int {
	if c.isDestroyed() {
		return 0
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Debug("no shader cache file", "path", path)
		return 0
	}
	if err != nil {
		c.log.Warn("shader cache unreadable, starting cold", "path", path, "err", err)
		return 0
	}
	entries, err := decode(data)
	if err != nil {
		c.log.Warn("shader cache rejected, starting cold", "path", path, "err", err)
		return 0
	}
	n := 0
	for _, e := range entries {
		if c.blobs.Set(e.fp, e.blob) {
			n++
		}
	}
	c.mu.Lock()
	c.loaded += n
	c.mu.Unlock()
	c.log.Info("shader cache loaded", "path", path, "entries", n)
	return n
}

// Save writes every entry to path atomically: the data goes to a temporary
// file in the same directory, is synced, then renamed over path.
func (c *Cache) Save(path string) error {
	if c.isDestroyed() {
		return ErrDestroyed
	}
	var entries []entry
	c.blobs.Each(func(fp Fingerprint, blob []byte) {
		entries = append(entries, entry{fp: fp, blob: blob})
	})
	data := encode(entries)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("shadercache: save: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("shadercache: save %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("shadercache: save %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("shadercache: save %s: %w", path, err)
	}
	c.log.Debug("shader cache saved", "path", path, "entries", len(entries), "bytes", len(data))
	return nil
}

type entry struct {
	fp   Fingerprint
	blob []byte
}

// encode lays out magic, version, count, the entries, then a CRC-32 of
// everything before it. All integers are little-endian.
func encode(entries []entry) []byte {
	size := headerSize + 4
	for _, e := range entries {
		size += len(e.fp) + 4 + len(e.blob)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.Write(magic[:])
	binary.Write(buf, binary.LittleEndian, FormatVersion)
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		buf.Write(e.fp[:])
		binary.Write(buf, binary.LittleEndian, uint32(len(e.blob)))
		buf.Write(e.blob)
	}
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes()
}

func decode(data []byte) ([]entry, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(body[4:]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	count := binary.LittleEndian.Uint32(body[8:])
	rest := body[headerSize:]

	entries := make([]entry, 0, min(int(count), len(rest)/(len(Fingerprint{})+4)))
	for i := uint32(0); i < count; i++ {
		var e entry
		if len(rest) < len(e.fp)+4 {
			return nil, fmt.Errorf("%w: entry %d truncated", ErrCorrupt, i)
		}
		copy(e.fp[:], rest)
		n := binary.LittleEndian.Uint32(rest[len(e.fp):])
		rest = rest[len(e.fp)+4:]
		if n > maxBlob || int(n) > len(rest) {
			return nil, fmt.Errorf("%w: entry %d length %d", ErrCorrupt, i, n)
		}
		e.blob = bytes.Clone(rest[:n])
		rest = rest[n:]
		entries = append(entries, e)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(rest))
	}
	return entries, nil
}
