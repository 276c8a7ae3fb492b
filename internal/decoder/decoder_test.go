package decoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamedata-tools/designextract/internal/cursor"
	"github.com/gamedata-tools/designextract/internal/metadata"
)

func mustCatalog(t *testing.T, dump string) *metadata.Catalog {
	t.Helper()
	cat, err := metadata.Parse(strings.NewReader(dump))
	require.NoError(t, err)
	return cat
}

func marshalJSON(t *testing.T, v interface {
	MarshalJSON() ([]byte, error)
}) string {
	t.Helper()
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestDecodePrimitiveBitmaskScenario(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class T
{
	public int a;
	public bool b;
	public string c;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	buf := []byte{0x04, 0x05, 0x68, 0x65, 0x6C, 0x6C, 0x6F}
	c := cursor.New(buf)
	obj, err := d.DecodeClass(c, "T", true, true)
	require.NoError(t, err)
	require.JSONEq(t, `{"c": "hello"}`, marshalJSON(t, obj))
}

func TestDecodeFixPointField(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class F
{
	public FixPoint v;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	// mask=1 (bit 0 set), then sleb128_zigzag byte 0x02 -> 1
	c := cursor.New([]byte{0x01, 0x02})
	obj, err := d.DecodeClass(c, "F", true, true)
	require.NoError(t, err)
	val, ok := obj.Get("v")
	require.True(t, ok)
	require.InDelta(t, 1.0/4294967296.0, val.(float64), 1e-20)
}

func TestDecodePolymorphicRecordScenario(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class JsonConfig
{
	public int Id;
}
// Namespace: RPG.GameCore
public class B : JsonConfig
{
	public int Common;
}
// Namespace: RPG.GameCore
public class Sa : B
{
	public uint y;
}
// Namespace: RPG.GameCore
public class Sb : B
{
	public uint x;
}
`
	cat := mustCatalog(t, dump)
	table, ok := cat.SubclassIndex("B")
	require.True(t, ok)
	require.Equal(t, "Sa", table[1])
	require.Equal(t, "Sb", table[2])

	d := New(cat, true)
	// index=2 (Sb); Sb's effective fields are [Id, Common, x] (x at bit 2),
	// so mask=0x04 selects only x, then uleb128 x=5.
	c := cursor.New([]byte{0x02, 0x04, 0x05})
	obj, err := d.DecodeClass(c, "B", true, true)
	require.NoError(t, err)
	require.JSONEq(t, `{"$type": "RPG.GameCore.Sb", "x": 5}`, marshalJSON(t, obj))
}

func TestDecodeZippedClassShortcut(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class ChangePropState
{
	public int PropId;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	c := cursor.New([]byte{0xFF}) // never read: zipped classes consume nothing
	obj, err := d.DecodeClass(c, "ChangePropState", true, true)
	require.NoError(t, err)
	require.JSONEq(t, `{"TaskEnabled": true}`, marshalJSON(t, obj))
	require.Equal(t, 0, c.Tell())
}

func TestDecodeEmptyBitmaskProducesEmptyObject(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class T
{
	public int a;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	c := cursor.New([]byte{0x00})
	obj, err := d.DecodeClass(c, "T", true, true)
	require.NoError(t, err)
	require.Equal(t, `{}`, marshalJSON(t, obj))
}

func TestDecodeEnumField(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public enum Kind
{
	public int value__;
	public const Kind Main = 0;
	public const Kind Side = 1;
}
// Namespace: RPG.GameCore
public class E
{
	public Kind k;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	// mask=1, sleb128_zigzag 0x02 -> 1 -> "Side"
	c := cursor.New([]byte{0x01, 0x02})
	obj, err := d.DecodeClass(c, "E", true, true)
	require.NoError(t, err)
	v, ok := obj.Get("k")
	require.True(t, ok)
	require.Equal(t, "Side", v)
}

func TestDecodeDynamicValueInt(t *testing.T) {
	d := New(mustCatalog(t, ""), true)
	// INT tag=0 (zigzag 0x00 -> 0), then IntValue zigzag 0x02 -> 1
	c := cursor.New([]byte{0x00, 0x02})
	obj, err := d.decodeDynamicValue(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"Type":"INT","IntValue":1}`, marshalJSON(t, obj))
}

func TestDecodeDynamicFloatReleaseNonDynamic(t *testing.T) {
	d := New(mustCatalog(t, ""), false)
	// is_dynamic=false, then sleb128_zigzag 0x02 -> 1
	c := cursor.New([]byte{0x00, 0x02})
	obj, err := d.decodeDynamicFloat(c)
	require.NoError(t, err)
	isDyn, _ := obj.Get("IsDynamic")
	require.Equal(t, false, isDyn)
}

func TestDecodeDictionaryField(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class D
{
	public Dictionary<string, int> m;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	// mask=1, dictionary count sleb128_zigzag 0x02->1, then key "hi" (len 2), value sleb128_zigzag 0x02->1
	buf := []byte{0x01, 0x02, 0x02, 'h', 'i', 0x02}
	c := cursor.New(buf)
	obj, err := d.DecodeClass(c, "D", true, true)
	require.NoError(t, err)
	m, ok := obj.Get("m")
	require.True(t, ok)
	require.JSONEq(t, `{"hi":1}`, marshalJSON(t, m.(interface{ MarshalJSON() ([]byte, error) })))
}

func TestDecodeArrayField(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class A
{
	public uint[] vals;
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	// mask=1, array_len uleb 0x04 -> 2 elements, then two uleb128 values 0x05, 0x07
	buf := []byte{0x01, 0x04, 0x05, 0x07}
	c := cursor.New(buf)
	obj, err := d.DecodeClass(c, "A", true, true)
	require.NoError(t, err)
	v, ok := obj.Get("vals")
	require.True(t, ok)
	require.JSONEq(t, `[5,7]`, marshalJSON(t, v.(interface{ MarshalJSON() ([]byte, error) })))
}

func TestDecodeUnknownSubclassIndexIsDecodeError(t *testing.T) {
	dump := `// Namespace: RPG.GameCore
public class JsonConfig
{
}
// Namespace: RPG.GameCore
public class B : JsonConfig
{
}
// Namespace: RPG.GameCore
public class Sa : B
{
}
`
	cat := mustCatalog(t, dump)
	d := New(cat, true)
	c := cursor.New([]byte{0x63}) // index 99, out of range
	_, err := d.DecodeClass(c, "B", true, true)
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindDecode, derr.Kind)
}
