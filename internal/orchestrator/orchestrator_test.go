package orchestrator

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/gamedata-tools/designextract/internal/container"
	"github.com/gamedata-tools/designextract/internal/decodetree"
	"github.com/gamedata-tools/designextract/internal/decoder"
	"github.com/gamedata-tools/designextract/internal/metadata"
	"github.com/gamedata-tools/designextract/internal/stablehash"
)

// buildDesignDir writes a minimal DesignV_* manifest plus one sibling
// single-chunk content file per entry, into dir.
func buildDesignDir(t *testing.T, dir string, entries map[string][]byte) {
	t.Helper()
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf []byte
	putU32 := func(v uint32) { buf = binary.BigEndian.AppendUint32(buf, v) }
	putU64 := func(v uint64) { buf = binary.BigEndian.AppendUint64(buf, v) }
	putI32 := func(v int32) { putU32(uint32(v)) }

	putU32(uint32(len(names)))
	for i, name := range names {
		content := entries[name]
		var nameSeed [16]byte
		nameSeed[15] = byte(i + 1)
		filename := hex.EncodeToString(nameSeed[:]) + ".bytes"
		require.NoError(t, os.WriteFile(filepath.Join(dir, filename), content, 0o644))

		putI32(0) // file-level hash is unused by lookups in this test
		buf = append(buf, nameSeed[:]...)
		putU64(uint64(len(content)))
		putU32(1) // one chunk per file
		putI32(stablehash.Hash(name))
		putU64(uint64(len(content)))
		putU64(0)
		buf = append(buf, 0) // trailing pad
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DesignV_test.bytes"), buf, 0o644))
}

const sampleDump = `// Namespace: RPG.GameCore
public class Foo
{
	public int X;
}
// Namespace: RPG.GameCore
public class FooRow
{
	public int Id;
	public string Name;
}
public static void LOAD(Dictionary<string, int> A, string[] B, out FooRow C) { }
`

func buildEncodedFoo(x int64) []byte {
	// mask=1 (field X present), then sleb128_zigzag(x)
	zz := uint64((x << 1) ^ (x >> 63))
	var out []byte
	out = append(out, 0x01)
	for {
		b := byte(zz & 0x7f)
		zz >>= 7
		if zz != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, manifestJSONBody string, extraEntries map[string][]byte) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	entries := map[string][]byte{
		"BakedConfig/ConfigManifest.json": []byte(manifestJSONBody),
	}
	for k, v := range extraEntries {
		entries[k] = v
	}
	buildDesignDir(t, dir, entries)

	idx, err := container.Load(dir)
	require.NoError(t, err)

	cat, err := metadata.Parse(strings.NewReader(sampleDump))
	require.NoError(t, err)

	dec := decoder.New(cat, true)
	o := New(idx, cat, dec, Options{Workers: 2, ExtraConfigMap: ExtraConfigMap{"FooConfigList": "Foo"}})
	return o, dir
}

func TestOrchestratorLoadsManifestOnConstruction(t *testing.T) {
	o, _ := newTestOrchestrator(t, `{"FooConfigList": ["Foo/item.json"]}`, map[string][]byte{
		"BakedConfig/Foo/item.bytes": buildEncodedFoo(5),
	})
	require.Equal(t, []string{"FooConfigList"}, o.ConfigNames())
}

func TestLoadConfigDecodesEachItem(t *testing.T) {
	o, _ := newTestOrchestrator(t, `{"FooConfigList": ["Foo/item.json"]}`, map[string][]byte{
		"BakedConfig/Foo/item.bytes": buildEncodedFoo(5),
	})
	var gotPath string
	var gotVal any
	errs := o.LoadConfig("FooConfigList", func(itemPath string, data *decodetree.Object) error {
		gotPath = itemPath
		gotVal, _ = data.Get("X")
		return nil
	})
	require.Empty(t, errs)
	require.Equal(t, "Foo/item.json", gotPath)
	require.EqualValues(t, 5, gotVal)
}

func TestLoadConfigCollectsErrorsWithoutAbortingBatch(t *testing.T) {
	o, _ := newTestOrchestrator(t, `{"FooConfigList": ["Foo/missing.json", "Foo/item.json"]}`, map[string][]byte{
		"BakedConfig/Foo/item.bytes": buildEncodedFoo(7),
	})
	var decoded []string
	errs := o.LoadConfig("FooConfigList", func(itemPath string, data *decodetree.Object) error {
		decoded = append(decoded, itemPath)
		return nil
	})
	require.Equal(t, []string{"Foo/missing.json"}, errs)
	require.Equal(t, []string{"Foo/item.json"}, decoded)
}

func TestLoadBinaryExcelKeysByIndexField(t *testing.T) {
	// array_len uleb(2 rows)=4, then two FooRow records: mask=3 (Id+Name)
	rowA := []byte{0x03, 0x02, 0x02, 'h', 'i'} // Id=1 (zigzag 0x02), Name="hi"
	rowB := []byte{0x03, 0x04, 0x04, 'y', 'o', 'y', 'o'}
	var buf []byte
	buf = append(buf, 0x04)
	buf = append(buf, rowA...)
	buf = append(buf, rowB...)

	o, _ := newTestOrchestrator(t, `{}`, map[string][]byte{
		"BakedConfig/ExcelOutput/Foo.bytes": buf,
	})
	data, err := o.LoadBinaryExcel("Foo", "")
	require.NoError(t, err)
	spew.Dump(data)
	require.Equal(t, 2, data.Len())
	row1, ok := data.Get("1")
	require.True(t, ok)
	name, _ := row1.(*decodetree.Object).Get("Name")
	require.Equal(t, "hi", name)

	key0, ok := row1.(*decodetree.Object).KeyAt(0)
	require.True(t, ok)
	require.Equal(t, "Id", key0, "indexField must stay the first key regardless of decode order")
}

// TestLoadBinaryExcelIndexFieldFirstWithBaseClass covers the case
// orchestrator.go's LoadBinaryExcel must seed around: BazRow's own first
// declared field (Id) is not EffectiveFields' first entry once a Base
// class contributes a field ahead of it, yet the index field must still
// end up first in the decoded row's key order.
func TestLoadBinaryExcelIndexFieldFirstWithBaseClass(t *testing.T) {
	const dump = `// Namespace: RPG.GameCore
public class Base
{
	public string Tag;
}
// Namespace: RPG.GameCore
public class BazRow : Base
{
	public int Id;
}
public static void LOAD(Dictionary<string, int> A, string[] B, out BazRow C) { }
`
	dir := t.TempDir()
	buildDesignDir(t, dir, map[string][]byte{
		"BakedConfig/ExcelOutput/Baz.bytes": {
			0x02,      // array_len uleb(1 row)=2
			0x03,      // mask: Tag + Id present
			0x01, 't', // Tag = "t"
			0x0e,      // Id = 7 (zigzag)
		},
	})

	idx, err := container.Load(dir)
	require.NoError(t, err)
	cat, err := metadata.Parse(strings.NewReader(dump))
	require.NoError(t, err)
	dec := decoder.New(cat, true)
	o := New(idx, cat, dec, Options{Workers: 1})

	data, err := o.LoadBinaryExcel("Baz", "")
	require.NoError(t, err)
	require.Equal(t, 1, data.Len())

	row, ok := data.Get("7")
	require.True(t, ok, "row must be keyed by Id's decoded value, not its ordinal")
	obj := row.(*decodetree.Object)

	key0, ok := obj.KeyAt(0)
	require.True(t, ok)
	require.Equal(t, "Id", key0, "Id must be first despite Base.Tag preceding it in EffectiveFields")

	tag, _ := obj.Get("Tag")
	require.Equal(t, "t", tag)
}
