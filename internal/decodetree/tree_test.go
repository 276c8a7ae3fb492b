package decodetree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	o := NewObject().Set("b", 1).Set("a", 2).Set("c", 3)
	b, err := o.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"b":1,"a":2,"c":3}`, string(b))
	require.Equal(t, `{"b":1,"a":2,"c":3}`, string(b))
}

func TestObjectSetOverwritesInPlace(t *testing.T) {
	o := NewObject().Set("x", 1).Set("y", 2).Set("x", 99)
	b, err := o.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"x":99,"y":2}`, string(b))
}

func TestArrayOfObjectsForMapValue(t *testing.T) {
	arr := NewArray()
	arr.Add(NewObject().Set("Key", NewObject().Set("Type", "INT").Set("IntValue", int64(1))).
		Set("Value", NewObject().Set("Type", "STRING").Set("StringValue", "hi")))
	b, err := arr.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `[{"Key":{"Type":"INT","IntValue":1},"Value":{"Type":"STRING","StringValue":"hi"}}]`, string(b))
}

func TestNestedObjectAndArray(t *testing.T) {
	o := NewObject().
		Set("name", "widget").
		Set("tags", NewArray().Add("a").Add("b"))
	b, err := o.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"widget","tags":["a","b"]}`, string(b))
}

func TestEmptyObjectAndArray(t *testing.T) {
	ob, err := NewObject().MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{}`, string(ob))

	ab, err := NewArray().MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `[]`, string(ab))
}

func TestGetAndHas(t *testing.T) {
	o := NewObject().Set("k", "v")
	require.True(t, o.Has("k"))
	require.False(t, o.Has("missing"))
	v, ok := o.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
