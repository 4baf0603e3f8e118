package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFieldPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		err  bool
	}{
		{in: "a", want: []string{"a"}},
		{in: "a.b.c", want: []string{"a", "b", "c"}},
		{in: "`a.b`.c", want: []string{"a.b", "c"}},
		{in: "`a\\`b`", want: []string{"a`b"}},
		{in: "", err: true},
		{in: "a..b", err: true},
		{in: "a.", err: true},
		{in: "`a", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitFieldPath(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetSetField(t *testing.T) {
	fields := map[string]*Value{}
	require.NoError(t, SetField(fields, "address.city", StringValue("Tokyo")))
	require.NoError(t, SetField(fields, "name", StringValue("x")))

	v, ok := GetField(fields, "address.city")
	require.True(t, ok)
	assert.Equal(t, "Tokyo", *v.StringValue)

	_, ok = GetField(fields, "address.zip")
	assert.False(t, ok)
	_, ok = GetField(fields, "name.sub")
	assert.False(t, ok)

	require.NoError(t, SetField(fields, "address.city", nil))
	_, ok = GetField(fields, "address.city")
	assert.False(t, ok)
	require.NoError(t, SetField(fields, "missing.path", nil))
	_, ok = fields["missing"]
	assert.False(t, ok)
}

func TestApplyMaskAndClone(t *testing.T) {
	fields := map[string]*Value{
		"a": IntegerValue(1),
		"m": MapOf(map[string]*Value{"x": IntegerValue(2), "y": IntegerValue(3)}),
	}
	masked := ApplyMask(fields, &DocumentMask{FieldPaths: []string{"m.x", "nope"}})
	assert.Len(t, masked, 1)
	v, ok := GetField(masked, "m.x")
	require.True(t, ok)
	assert.Equal(t, int64(2), *v.IntegerValue)
	assert.Equal(t, fields, ApplyMask(fields, nil))

	clone := CloneFields(fields)
	require.NoError(t, SetField(clone, "m.z", IntegerValue(4)))
	_, ok = GetField(fields, "m.z")
	assert.False(t, ok)
}
