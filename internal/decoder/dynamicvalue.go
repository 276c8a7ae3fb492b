package decoder

import (
	"github.com/gamedata-tools/designextract/internal/cursor"
	"github.com/gamedata-tools/designextract/internal/decodetree"
)

// dynamicValueSubFields are the three opaque fixed sub-field names a
// DynamicValues entry's content block always carries, in wire order.
var dynamicValueSubFields = [3]string{"LGKGOMNMBAH", "JKFHANPDGCA", "LCADBHMMDED"}

// decodeDynamicValue decodes one recursive tagged-union DynamicValue.
func (d *Decoder) decodeDynamicValue(c *cursor.Cursor) (*decodetree.Object, error) {
	tag, err := c.ReadSLEB128Zigzag()
	if err != nil {
		return nil, err
	}
	obj := decodetree.NewObject()
	switch tag {
	case 0:
		v, err := c.ReadSLEB128Zigzag()
		if err != nil {
			return nil, err
		}
		obj.Set("Type", "INT").Set("IntValue", v)
	case 1:
		v, err := c.ReadFloat32()
		if err != nil {
			return nil, err
		}
		obj.Set("Type", "FLOAT").Set("FloatValue", v)
	case 2:
		v, err := c.ReadBool()
		if err != nil {
			return nil, err
		}
		obj.Set("Type", "BOOL").Set("BoolValue", v)
	case 3:
		n, err := c.ReadArrayLen()
		if err != nil {
			return nil, err
		}
		arr := decodetree.NewArray()
		for i := 0; i < n; i++ {
			v, err := d.decodeDynamicValue(c)
			if err != nil {
				return nil, err
			}
			arr.Add(v)
		}
		obj.Set("Type", "ARRAY").Set("ArrayValue", arr)
	case 4:
		n, err := c.ReadArrayLen()
		if err != nil {
			return nil, err
		}
		arr := decodetree.NewArray()
		for i := 0; i < n; i++ {
			key, err := d.decodeDynamicValue(c)
			if err != nil {
				return nil, err
			}
			val, err := d.decodeDynamicValue(c)
			if err != nil {
				return nil, err
			}
			arr.Add(decodetree.NewObject().Set("Key", key).Set("Value", val))
		}
		obj.Set("Type", "MAP").Set("MapValue", arr)
	case 5:
		s, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		obj.Set("Type", "STRING").Set("StringValue", s)
	case 6:
		obj.Set("Type", "NULL")
	default:
		return nil, decodeErrorf(nil, "decoder: unknown dynamic value type %d", tag)
	}
	return obj, nil
}

// decodeDynamicValueReadType reads the trailing "read type" block shared
// by DynamicValues entries: a kind byte, and when non-zero, a string and
// a hash recorded as a sub-field.
func (d *Decoder) decodeDynamicValueReadType(c *cursor.Cursor) (*decodetree.Object, bool, error) {
	kind, err := c.ReadByte()
	if err != nil {
		return nil, false, err
	}
	if kind == 0 {
		return decodetree.NewObject().Set("DynamicValueReadType", kind), false, nil
	}
	s, err := c.ReadString()
	if err != nil {
		return nil, false, err
	}
	h, err := c.ReadHash()
	if err != nil {
		return nil, false, err
	}
	return decodetree.NewObject().
		Set("DynamicValueReadType", kind).
		Set("String", s).
		Set("Integer", h), true, nil
}

// decodeDynamicValues decodes the FMIOFJDICOO internal alias type: a
// count-prefixed list of hash-keyed entries, each either a triple of
// DynamicFloat sub-fields or a short discard sequence, followed by a
// shared read-type trailer. Emits a mapping from key hash to sub-item.
func (d *Decoder) decodeDynamicValues(c *cursor.Cursor) (*decodetree.Object, error) {
	count, err := c.ReadULEB128()
	if err != nil {
		return nil, err
	}
	result := decodetree.NewObject()
	for i := uint64(0); i < count; i++ {
		hash, err := c.ReadHash()
		if err != nil {
			return nil, err
		}
		subItem := decodetree.NewObject()

		hasContent, err := c.ReadBool()
		if err != nil {
			return nil, err
		}
		if hasContent {
			for _, name := range dynamicValueSubFields {
				v, err := d.decodeDynamicFloat(c)
				if err != nil {
					return nil, err
				}
				subItem.Set(name, v)
			}
		} else {
			if _, err := c.ReadHash(); err != nil {
				return nil, err
			}
			hasAppend, err := c.ReadBool()
			if err != nil {
				return nil, err
			}
			if hasAppend {
				if _, err := c.ReadHash(); err != nil {
					return nil, err
				}
				if _, err := c.ReadHash(); err != nil {
					return nil, err
				}
			}
		}

		readType, hasReadType, err := d.decodeDynamicValueReadType(c)
		if err != nil {
			return nil, err
		}
		if hasReadType {
			subItem.Set("IMMOBDAEDCL", readType)
		}

		result.Set(fmtInt32(hash), subItem)
	}
	return result, nil
}
