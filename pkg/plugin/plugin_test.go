package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchidlang/orchid/pkg/value"
)

func TestLoaderReturnsTrueNilOnFailure(t *testing.T) {
	mod, err := Loader("missing", "/no/such/plugin/binary")
	require.Error(t, err)
	assert.Nil(t, mod)
}

func TestToRawConvertsValueKinds(t *testing.T) {
	assert.Equal(t, "hi", toRaw(value.String("hi")))
	assert.Equal(t, 2.5, toRaw(value.Number(2.5)))
	assert.Equal(t, true, toRaw(value.Boolean(true)))

	list := toRaw(value.List([]value.Value{value.String("a"), value.Number(1)}))
	assert.Equal(t, []interface{}{"a", 1.0}, list)

	dict := toRaw(value.DictFrom([]string{"k"}, map[string]value.Value{"k": value.Number(3)}))
	assert.Equal(t, map[string]interface{}{"k": 3.0}, dict)
}

func TestFromRawConvertsGoKinds(t *testing.T) {
	assert.Equal(t, value.Null, fromRaw(nil))
	assert.Equal(t, value.String("hi"), fromRaw("hi"))
	assert.Equal(t, value.Number(2.5), fromRaw(2.5))
	assert.Equal(t, value.Number(3), fromRaw(3))
	assert.Equal(t, value.Boolean(true), fromRaw(true))

	list := fromRaw([]interface{}{"a", 1.0})
	require.Equal(t, value.KindList, list.Kind)
	items := list.ListItems()
	require.Len(t, items, 2)
	assert.Equal(t, value.String("a"), items[0])
	assert.Equal(t, value.Number(1), items[1])

	dict := fromRaw(map[string]interface{}{"k": "v"})
	require.Equal(t, value.KindDict, dict.Kind)
	got, ok := dict.DictGet("k")
	require.True(t, ok)
	assert.Equal(t, value.String("v"), got)
}

func TestFromRawFallsBackToStringForUnknownType(t *testing.T) {
	type custom struct{ X int }
	got := fromRaw(custom{X: 1})
	assert.Equal(t, value.KindString, got.Kind)
}
