// Package container reads the packed design-data directory: a small set
// of DesignV_* blob files, each holding many logical records addressed by
// a 32-bit stable hash through a flat index header.
package container

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/tidwall/hashmap"
	"github.com/valyala/bytebufferpool"

	"github.com/gamedata-tools/designextract/internal/cursor"
	"github.com/gamedata-tools/designextract/internal/stablehash"
)

// chunkFileCacheTTL bounds how long an opened blob's bytes stay resident;
// a full extraction run touches every blob at least once but rarely
// revisits one once its chunks are drained.
const chunkFileCacheTTL = 5 * time.Minute

// ChunkEntry locates one logical record's bytes inside its parent blob.
type ChunkEntry struct {
	Hash           int32
	Size           uint64
	Offset         uint64
	ParentFilename string
}

// FileEntry is one DesignV_* blob's own directory record: its declared
// name hash, on-disk filename, declared size, and the chunk table it owns.
type FileEntry struct {
	Hash     int32
	Filename string
	Size     uint64
	Chunks   []ChunkEntry
}

// Index is a parsed design-data directory: every FileEntry plus a flat
// hash -> ChunkEntry lookup table spanning all of them.
type Index struct {
	dirPath     string
	fileEntries []FileEntry
	byHash      hashmap.Map[int32, ChunkEntry]
	fileCache   *ttlcache.Cache[uint64, []byte]
}

// Load opens path, which may be either a directory containing a
// DesignV_* blob or a path directly to one, and parses its index header.
func Load(path string) (*Index, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("container: resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("container: stat %q: %w", abs, err)
	}

	idx := &Index{
		fileCache: ttlcache.New[uint64, []byte](
			ttlcache.WithTTL[uint64, []byte](chunkFileCacheTTL),
			ttlcache.WithDisableTouchOnHit[uint64, []byte](),
		),
	}

	switch {
	case info.IsDir():
		idx.dirPath = abs
		target, err := firstDesignBlob(abs)
		if err != nil {
			return nil, err
		}
		if err := idx.load(target); err != nil {
			return nil, err
		}
	case info.Mode().IsRegular():
		idx.dirPath = filepath.Dir(abs)
		if err := idx.load(abs); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("container: %q is neither a file nor a directory", abs)
	}
	return idx, nil
}

func firstDesignBlob(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("container: read dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isDesignBlobName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("container: no DesignV_* file found in %q; point at the DesignData folder or a specific file", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

func isDesignBlobName(name string) bool {
	const prefix = "DesignV_"
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func (idx *Index) load(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("container: read %q: %w", path, err)
	}
	c := cursor.New(buf)

	fileCount, err := c.ReadUint32BE()
	if err != nil {
		return fmt.Errorf("container: file count: %w", err)
	}
	for i := uint32(0); i < fileCount; i++ {
		fe, err := readFileEntry(c)
		if err != nil {
			return fmt.Errorf("container: file entry %d: %w", i, err)
		}
		idx.fileEntries = append(idx.fileEntries, fe)
		for _, ch := range fe.Chunks {
			idx.byHash.Set(ch.Hash, ch)
		}
	}
	return nil
}

func readFileEntry(c *cursor.Cursor) (FileEntry, error) {
	h, err := c.ReadInt32BE()
	if err != nil {
		return FileEntry{}, fmt.Errorf("hash: %w", err)
	}
	nameBytes, err := c.ReadBytes(16)
	if err != nil {
		return FileEntry{}, fmt.Errorf("name: %w", err)
	}
	filename := hex.EncodeToString(nameBytes) + ".bytes"
	size, err := c.ReadUint64BE()
	if err != nil {
		return FileEntry{}, fmt.Errorf("size: %w", err)
	}
	count, err := c.ReadUint32BE()
	if err != nil {
		return FileEntry{}, fmt.Errorf("count: %w", err)
	}
	fe := FileEntry{Hash: h, Filename: filename, Size: size}
	for i := uint32(0); i < count; i++ {
		chunk, err := readChunkEntry(c, filename)
		if err != nil {
			return FileEntry{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		fe.Chunks = append(fe.Chunks, chunk)
	}
	if err := c.Skip(1); err != nil {
		return FileEntry{}, fmt.Errorf("trailing pad: %w", err)
	}
	return fe, nil
}

func readChunkEntry(c *cursor.Cursor, parent string) (ChunkEntry, error) {
	h, err := c.ReadInt32BE()
	if err != nil {
		return ChunkEntry{}, fmt.Errorf("hash: %w", err)
	}
	size, err := c.ReadUint64BE()
	if err != nil {
		return ChunkEntry{}, fmt.Errorf("size: %w", err)
	}
	offset, err := c.ReadUint64BE()
	if err != nil {
		return ChunkEntry{}, fmt.Errorf("offset: %w", err)
	}
	return ChunkEntry{Hash: h, Size: size, Offset: offset, ParentFilename: parent}, nil
}

// FileEntries returns every parsed blob record, in on-disk order.
func (idx *Index) FileEntries() []FileEntry {
	return idx.fileEntries
}

// EntryByHash looks up a chunk by its raw stable hash.
func (idx *Index) EntryByHash(hash int32) (ChunkEntry, bool) {
	return idx.byHash.Get(hash)
}

// EntryByName looks up a chunk by logical name, hashing it first.
func (idx *Index) EntryByName(name string) (ChunkEntry, bool) {
	return idx.EntryByHash(stablehash.Hash(name))
}

// ReadChunk materializes the bytes of entry. The parent blob is opened at
// most once per TTL window regardless of how many chunks are pulled from it.
func (idx *Index) ReadChunk(entry ChunkEntry) ([]byte, error) {
	content, err := idx.openBlob(entry.ParentFilename)
	if err != nil {
		return nil, err
	}
	end := entry.Offset + entry.Size
	if end > uint64(len(content)) {
		return nil, fmt.Errorf("container: chunk %s+0x%x length 0x%x exceeds blob size %d",
			entry.ParentFilename, entry.Offset, entry.Size, len(content))
	}
	out := make([]byte, entry.Size)
	copy(out, content[entry.Offset:end])
	return out, nil
}

// ReadChunkCursor is ReadChunk wrapped in a fresh Cursor, the form every
// typed-decoder entry point consumes.
func (idx *Index) ReadChunkCursor(entry ChunkEntry) (*cursor.Cursor, error) {
	b, err := idx.ReadChunk(entry)
	if err != nil {
		return nil, err
	}
	return cursor.New(b), nil
}

// openBlob reads filename's full contents into the TTL cache. The read
// itself goes through a pooled scratch buffer, the same
// Get/Reset-read-copy-Put(defer) shape as compactindexsized/query.go's
// Bucket.Lookup, since the cached slice must outlive the pooled buffer.
func (idx *Index) openBlob(filename string) ([]byte, error) {
	path := filepath.Join(idx.dirPath, filename)
	key := xxhash.Sum64String(path)
	if item := idx.fileCache.Get(key); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open blob %q: %w", path, err)
	}
	defer f.Close()

	scratch := bytebufferpool.Get()
	defer bytebufferpool.Put(scratch)
	scratch.Reset()
	if _, err := scratch.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("container: read blob %q: %w", path, err)
	}

	b := make([]byte, scratch.Len())
	copy(b, scratch.Bytes())
	idx.fileCache.Set(key, b, ttlcache.DefaultTTL)
	return b, nil
}

// Close releases cached blob bytes.
func (idx *Index) Close() {
	idx.fileCache.DeleteAll()
}
