// Package decoder implements the schema-driven recursive record decode:
// polymorphism dispatch, presence bitmasks, and the full field-type
// dispatch table, including the dynamic-expression and dynamic-value
// aggregates.
package decoder

import (
	"fmt"

	"github.com/gamedata-tools/designextract/internal/cursor"
	"github.com/gamedata-tools/designextract/internal/decodetree"
	"github.com/gamedata-tools/designextract/internal/metadata"
)

const fixPointScale = 4294967296 // 2^32

// zippedClasses decode to a single literal constant: their schema carries
// no wire payload, only runtime behavior flags the game replays client-side.
var zippedClasses = map[string]struct{}{
	"ChangePropState":     {},
	"SyncAllSubPropState": {},
	"SyncSubPropState":    {},
	"LoopWaitBeHit":       {},
	"WaitPredicateSucc":   {},
	"ComparePropState":    {},
}

// Decoder decodes wire records against a Catalog. Beta selects the
// DynamicFloat wire dialect; it is a single orchestrator-wide toggle, not
// per-record.
type Decoder struct {
	catalog *metadata.Catalog
	beta    bool
}

// New builds a Decoder bound to catalog, decoding DynamicFloat fields in
// the beta (interleaved) dialect when beta is true, else the release
// (streaming) dialect.
func New(catalog *metadata.Catalog, beta bool) *Decoder {
	return &Decoder{catalog: catalog, beta: beta}
}

// DecodeClass decodes one record of className from c. parsePolymorphism
// gates whether a polymorphic subclass tag may be read; addTypeTag, when
// parsePolymorphism is false, controls whether a synthetic "$type" field
// records the concrete class name.
func (d *Decoder) DecodeClass(c *cursor.Cursor, className string, parsePolymorphism, addTypeTag bool) (*decodetree.Object, error) {
	result := decodetree.NewObject()
	if !parsePolymorphism && addTypeTag {
		result.Set("$type", "RPG.GameCore."+className)
	}
	if _, zipped := zippedClasses[className]; zipped {
		result.Set("TaskEnabled", true)
		return result, nil
	}

	if parsePolymorphism {
		if table, ok := d.catalog.SubclassIndex(className); ok {
			k, err := c.ReadULEB128()
			if err != nil {
				return nil, decodeErrorf(err, "decoder: read subclass index for %s", className)
			}
			concrete, ok := table[int(k)]
			if !ok {
				return nil, decodeErrorf(nil, "decoder: unknown subclass index %d for %s", k, className)
			}
			return d.DecodeClass(c, concrete, false, true)
		}
	}

	fields, err := d.catalog.EffectiveFields(className)
	if err != nil {
		return nil, schemaErrorf("decoder: unknown class %q", className)
	}

	mask, err := c.ReadULEB128()
	if err != nil {
		return nil, decodeErrorf(err, "decoder: presence mask for %s", className)
	}
	for i, fd := range fields {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if fd.IsArray {
			n, err := c.ReadArrayLen()
			if err != nil {
				return nil, decodeErrorf(err, "decoder: array length for %s.%s", className, fd.Name)
			}
			arr := decodetree.NewArray()
			for j := 0; j < n; j++ {
				v, err := d.decodeFieldType(c, fd.Type)
				if err != nil {
					return nil, fmt.Errorf("decoder: %s.%s[%d]: %w", className, fd.Name, j, err)
				}
				arr.Add(v)
			}
			result.Set(fd.Name, arr)
			continue
		}
		v, err := d.decodeField(c, fd)
		if err != nil {
			return nil, fmt.Errorf("decoder: %s.%s: %w", className, fd.Name, err)
		}
		result.Set(fd.Name, v)
	}
	return result, nil
}

// decodeField resolves a declared field (possibly generic) to a value.
func (d *Decoder) decodeField(c *cursor.Cursor, fd metadata.FieldDecl) (any, error) {
	if fd.IsGeneric {
		if fd.Type != "Dictionary" {
			return nil, schemaErrorf("decoder: unsupported generic type %s<%v> on field %s", fd.Type, fd.GenericArgs, fd.Name)
		}
		if len(fd.GenericArgs) == 0 {
			return nil, schemaErrorf("decoder: Dictionary field %s has no generic arguments", fd.Name)
		}
		keyTy := fd.GenericArgs[0]
		valTy := fd.GenericArgs[len(fd.GenericArgs)-1]
		return d.decodeDictionary(c, keyTy, valTy)
	}
	return d.decodeFieldType(c, fd.Type)
}

// decodeFieldType decodes one value of the named wire type. It is used
// both for plain (non-generic) fields and recursively for array elements
// and dictionary key/value types.
func (d *Decoder) decodeFieldType(c *cursor.Cursor, typeName string) (any, error) {
	switch {
	case typeName == "string":
		return c.ReadString()
	case typeName == "bool":
		return c.ReadBool()
	case typeName == "uint":
		return c.ReadULEB128()
	case typeName == "FixPoint":
		v, err := c.ReadSLEB128Zigzag()
		if err != nil {
			return nil, err
		}
		return float64(v) / fixPointScale, nil
	case typeName == "int":
		return c.ReadSLEB128Zigzag()
	case typeName == "float":
		return c.ReadFloat32()
	case typeName == "double":
		return c.ReadFloat64()
	case typeName == "byte":
		return c.ReadByte()
	case typeName == "DynamicFloat":
		return d.decodeDynamicFloat(c)
	case typeName == "DynamicValue":
		return d.decodeDynamicValue(c)
	case typeName == "FMIOFJDICOO":
		return d.decodeDynamicValues(c)
	case typeName == "TextID" || typeName == "StringHash":
		h, err := c.ReadHash()
		if err != nil {
			return nil, err
		}
		return decodetree.NewObject().Set("Hash", h), nil
	case len(typeName) > 7 && typeName[:7] == "MVector":
		n := int(typeName[7] - '0')
		return d.decodeVector(c, n)
	case d.catalog.HasEnum(typeName):
		return d.decodeEnum(c, typeName)
	case d.catalog.HasClass(typeName):
		obj, err := d.DecodeClass(c, typeName, true, true)
		return obj, err
	default:
		return nil, schemaErrorf("decoder: unknown type %q", typeName)
	}
}

func (d *Decoder) decodeEnum(c *cursor.Cursor, enumName string) (string, error) {
	ed, _ := d.catalog.Enum(enumName)
	var v int64
	var err error
	switch ed.Kind {
	case metadata.EnumSigned32:
		v, err = c.ReadSLEB128Zigzag()
	case metadata.EnumUint16, metadata.EnumUint32:
		var u uint64
		u, err = c.ReadULEB128()
		v = int64(u)
	default:
		return "", schemaErrorf("decoder: unknown enum value kind for %s", enumName)
	}
	if err != nil {
		return "", err
	}
	name, ok := ed.NameOf(v)
	if !ok {
		return "", decodeErrorf(nil, "decoder: unknown enum value %d for %s", v, enumName)
	}
	return name, nil
}

func (d *Decoder) decodeVector(c *cursor.Cursor, n int) (*decodetree.Object, error) {
	x, err := c.ReadFloat32()
	if err != nil {
		return nil, err
	}
	y, err := c.ReadFloat32()
	if err != nil {
		return nil, err
	}
	obj := decodetree.NewObject().Set("X", x).Set("Y", y)
	if n >= 3 {
		z, err := c.ReadFloat32()
		if err != nil {
			return nil, err
		}
		obj.Set("Z", z)
	}
	if n >= 4 {
		w, err := c.ReadFloat32()
		if err != nil {
			return nil, err
		}
		obj.Set("W", w)
	}
	return obj, nil
}

func fmtInt32(v int32) string {
	return fmt.Sprint(v)
}

// decodeDictionary decodes a Dictionary<K,V> field. Its element count is
// sleb128_zigzag, not array_len like every other aggregate — preserved
// exactly as the wire format defines it.
func (d *Decoder) decodeDictionary(c *cursor.Cursor, keyTy, valTy string) (*decodetree.Object, error) {
	count, err := c.ReadSLEB128Zigzag()
	if err != nil {
		return nil, decodeErrorf(err, "decoder: dictionary count")
	}
	if count < 0 {
		return nil, decodeErrorf(nil, "decoder: negative dictionary count %d", count)
	}
	obj := decodetree.NewObject()
	for i := int64(0); i < count; i++ {
		key, err := d.decodeFieldType(c, keyTy)
		if err != nil {
			return nil, fmt.Errorf("decoder: dictionary key %d: %w", i, err)
		}
		val, err := d.decodeFieldType(c, valTy)
		if err != nil {
			return nil, fmt.Errorf("decoder: dictionary value %d: %w", i, err)
		}
		obj.Set(fmt.Sprint(key), val)
	}
	return obj, nil
}
