package container

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamedata-tools/designextract/internal/stablehash"
)

// buildIndexHeader constructs one DesignV_* manifest bytes blob describing a
// single blob file with a single chunk.
func buildIndexHeader(t *testing.T, fileHash int32, nameHex16 [16]byte, blobSize uint64, chunkHash int32, chunkSize, chunkOffset uint64) []byte {
	t.Helper()
	var buf []byte
	put32 := func(v int32) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		buf = append(buf, b...)
	}
	putU32 := func(v uint32) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		buf = append(buf, b...)
	}
	putU64 := func(v uint64) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v)
		buf = append(buf, b...)
	}

	putU32(1) // file_count
	put32(fileHash)
	buf = append(buf, nameHex16[:]...)
	putU64(blobSize)
	putU32(1) // chunk_count
	put32(chunkHash)
	putU64(chunkSize)
	putU64(chunkOffset)
	buf = append(buf, 0x00) // trailing pad
	return buf
}

func TestLoadDirectoryAndReadChunk(t *testing.T) {
	dir := t.TempDir()

	var nameBytes [16]byte
	copy(nameBytes[:], []byte("blobblobblobblob"))
	filename := "626c6f62626c6f62626c6f62626c6f62.bytes" // hex of "blobblobblobblob"

	content := []byte("hello, design data")
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), content, 0o644))

	chunkHash := stablehash.Hash("Some/Logical/Name.json")
	header := buildIndexHeader(t, 1, nameBytes, uint64(len(content)), chunkHash, 5, 7)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DesignV_1.bytes"), header, 0o644))

	idx, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, idx.FileEntries(), 1)

	entry, ok := idx.EntryByName("Some/Logical/Name.json")
	require.True(t, ok)
	require.Equal(t, uint64(5), entry.Size)
	require.Equal(t, uint64(7), entry.Offset)

	got, err := idx.ReadChunk(entry)
	require.NoError(t, err)
	require.Equal(t, "desig", string(got)) // content[7:12]
}

func TestLoadRejectsMissingDesignBlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-design-file.txt"), []byte("x"), 0o644))
	_, err := Load(dir)
	require.Error(t, err)
}

func TestEntryByHashMissing(t *testing.T) {
	dir := t.TempDir()
	var nameBytes [16]byte
	filename := "00000000000000000000000000000000.bytes"
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte("abc"), 0o644))
	header := buildIndexHeader(t, 0, nameBytes, 3, 42, 3, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DesignV_only.bytes"), header, 0o644))

	idx, err := Load(dir)
	require.NoError(t, err)
	_, ok := idx.EntryByHash(999)
	require.False(t, ok)

	entry, ok := idx.EntryByHash(42)
	require.True(t, ok)
	got, err := idx.ReadChunk(entry)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}
