package rowset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Get(t *testing.T) {
	res := New([]string{"id", "name"}, [][]any{{float64(1), "ada"}})
	row := res.Row(0)

	v, err := row.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestRow_UnknownColumn(t *testing.T) {
	res := New([]string{"id"}, [][]any{{float64(1)}})
	_, err := res.Row(0).Get("nope")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Column)
}

func TestRow_GetStringNullIsEmpty(t *testing.T) {
	res := New([]string{"remarks"}, [][]any{{nil}})
	s, err := res.Row(0).GetString("remarks")
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestDecodePair(t *testing.T) {
	res, err := DecodePair([]any{
		[]any{"a", "b"},
		[]any{[]any{float64(1), "x"}, []any{float64(2), "y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Columns)
	require.Equal(t, 2, res.Len())

	v, err := res.Row(1).Get("b")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}

func TestDecodePair_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{name: "not a pair", in: "bogus"},
		{name: "wrong arity", in: []any{[]any{"a"}}},
		{name: "non-string column", in: []any{[]any{float64(1)}, []any{}}},
		{name: "non-tuple row", in: []any{[]any{"a"}, []any{"flat"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePair(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestDecodeRows_NilIsEmpty(t *testing.T) {
	rows, err := DecodeRows(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
