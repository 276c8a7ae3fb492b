package decoder

import (
	"github.com/gamedata-tools/designextract/internal/cursor"
	"github.com/gamedata-tools/designextract/internal/decodetree"
)

// decodeDynamicFloat dispatches to the beta or release wire dialect
// according to the decoder's global toggle.
func (d *Decoder) decodeDynamicFloat(c *cursor.Cursor) (*decodetree.Object, error) {
	if d.beta {
		return d.decodeDynamicFloatBeta(c)
	}
	return d.decodeDynamicFloatRelease(c)
}

// decodeDynamicFloatBeta reads the interleaved beta wire form: three flat
// operand pools (Op, Fixed, Dynamic) read up front, then a second pass
// walks Op to reconstruct an expression tree by consuming operand-pool
// indices inline. A pool-exhaustion or unknown-opcode failure during that
// second pass is recoverable: the raw pools are kept, annotated with
// "$warning", rather than aborting the record.
func (d *Decoder) decodeDynamicFloatBeta(c *cursor.Cursor) (*decodetree.Object, error) {
	isDynamic, err := c.ReadBool()
	if err != nil {
		return nil, err
	}
	if !isDynamic {
		v, err := c.ReadSLEB128Zigzag()
		if err != nil {
			return nil, err
		}
		fixed := decodetree.NewObject().Set("Value", float64(v)/fixPointScale)
		return decodetree.NewObject().Set("IsDynamic", false).Set("FixedValue", fixed), nil
	}

	opCount, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	ops := make([]byte, opCount)
	for i := range ops {
		ops[i], err = c.ReadByte()
		if err != nil {
			return nil, err
		}
	}
	fixedCount, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	fixedPool := make([]int64, fixedCount)
	for i := range fixedPool {
		fixedPool[i], err = c.ReadSLEB128Zigzag()
		if err != nil {
			return nil, err
		}
	}
	dynamicCount, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	dynamicPool := make([]int32, dynamicCount)
	for i := range dynamicPool {
		dynamicPool[i], err = c.ReadHash()
		if err != nil {
			return nil, err
		}
	}

	expr, ok := walkBetaExpression(ops, fixedPool, dynamicPool)
	result := decodetree.NewObject().Set("IsDynamic", true)
	if ok {
		result.Set("Expressions", expr)
	} else {
		raw := decodetree.NewObject()
		opsArr := decodetree.NewArray()
		for _, b := range ops {
			opsArr.Add(b)
		}
		fixedArr := decodetree.NewArray()
		for _, v := range fixedPool {
			fixedArr.Add(v)
		}
		dynArr := decodetree.NewArray()
		for _, v := range dynamicPool {
			dynArr.Add(v)
		}
		raw.Set("Op", opsArr).Set("Fixed", fixedArr).Set("Dynamic", dynArr).
			Set("$warning", "Analyzer failed to parse expression")
		result.Set("Expressions", raw)
	}
	return result, nil
}

// walkBetaExpression reconstructs the expression list by walking ops,
// consuming one extra Op-pool byte as an operand-pool index for opcodes
// 0 and 1. Returns ok=false on any out-of-range index or unknown opcode,
// signaling the caller to fall back to the raw-pool representation.
func walkBetaExpression(ops []byte, fixedPool []int64, dynamicPool []int32) (*decodetree.Array, bool) {
	arr := decodetree.NewArray()
	ok := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		idx := 0
		for idx < len(ops) {
			op := ops[idx]
			switch op {
			case 0:
				idx++
				fixedIdx := int(ops[idx])
				arr.Add(decodetree.NewObject().Set("Type", "FixedNumber").
					Set("FixedValue", decodetree.NewObject().Set("Value", float64(fixedPool[fixedIdx])/fixPointScale)))
			case 1:
				idx++
				dynIdx := int(ops[idx])
				arr.Add(decodetree.NewObject().Set("Type", "DynamicNumber").Set("DynamicHash", dynamicPool[dynIdx]))
			case 2:
				arr.Add(decodetree.NewObject().Set("Type", "Add"))
			case 3:
				arr.Add(decodetree.NewObject().Set("Type", "Sub"))
			case 4:
				arr.Add(decodetree.NewObject().Set("Type", "Mul"))
			case 5:
				arr.Add(decodetree.NewObject().Set("Type", "Div"))
			case 6:
				arr.Add(decodetree.NewObject().Set("Type", "Neg"))
			case 7:
				arr.Add(decodetree.NewObject().Set("Type", "Floor"))
			case 8:
				arr.Add(decodetree.NewObject().Set("Type", "Round"))
			case 9:
				// Int: no expression node emitted.
			default:
				panic("unknown opcode")
			}
			idx++
		}
	}()
	if !ok {
		return nil, false
	}
	return arr, true
}

// decodeDynamicFloatRelease reads the streaming release wire form: each
// opcode's payload (if any) is read immediately inline, no separate
// operand pools. An unknown opcode is fatal here, unlike the beta dialect.
func (d *Decoder) decodeDynamicFloatRelease(c *cursor.Cursor) (*decodetree.Object, error) {
	isDynamic, err := c.ReadBool()
	if err != nil {
		return nil, err
	}
	if !isDynamic {
		v, err := c.ReadSLEB128Zigzag()
		if err != nil {
			return nil, err
		}
		fixed := decodetree.NewObject().Set("Value", float64(v)/fixPointScale)
		return decodetree.NewObject().Set("IsDynamic", false).Set("FixedValue", fixed), nil
	}

	numOps, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	expr := decodetree.NewArray()
	for i := byte(0); i < numOps; i++ {
		op, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case 0:
			v, err := c.ReadSLEB128Zigzag()
			if err != nil {
				return nil, err
			}
			expr.Add(decodetree.NewObject().Set("Type", "FixedNumber").
				Set("FixedValue", decodetree.NewObject().Set("Value", float64(v)/fixPointScale)))
		case 1:
			h, err := c.ReadHash()
			if err != nil {
				return nil, err
			}
			expr.Add(decodetree.NewObject().Set("Type", "DynamicNumber").Set("DynamicHash", h))
		case 2:
			expr.Add(decodetree.NewObject().Set("Type", "Add"))
		case 3:
			expr.Add(decodetree.NewObject().Set("Type", "Sub"))
		case 4:
			expr.Add(decodetree.NewObject().Set("Type", "Mul"))
		case 5:
			expr.Add(decodetree.NewObject().Set("Type", "Div"))
		case 6:
			expr.Add(decodetree.NewObject().Set("Type", "Neg"))
		case 7:
			expr.Add(decodetree.NewObject().Set("Type", "Floor"))
		case 8:
			expr.Add(decodetree.NewObject().Set("Type", "Round"))
		case 9:
			expr.Add(decodetree.NewObject().Set("Type", "Int"))
		default:
			return nil, decodeErrorf(nil, "decoder: unknown dynamic-float opcode %d", op)
		}
	}
	return decodetree.NewObject().Set("IsDynamic", true).Set("Expressions", expr), nil
}
