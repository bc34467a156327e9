package doc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Canonical(t *testing.T) {
	obj := Object{
		"title": String("<b>Hi</b> & bye"),
		"views": Int(3),
		"likes": Array{String("u1"), String("u2")},
		"draft": Bool(false),
		"extra": Null{},
	}
	got, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t,
		`{"draft":false,"extra":null,"likes":["u1","u2"],"title":"<b>Hi</b> & bye","views":3}`,
		string(got))
}

func TestMarshal_EscapesOnlyRequired(t *testing.T) {
	got, err := Marshal(String("a\"b\\c\nd\x01e f"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001e`+" "+`f"`, string(got))
}

func TestMarshal_NFCNormalizes(t *testing.T) {
	decomposed := "e\u0301"
	got, err := Marshal(String(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshal_Timestamp(t *testing.T) {
	ts := Timestamp{Time: time.Date(2024, 3, 1, 12, 30, 0, 500000000, time.UTC)}
	got, err := Marshal(Object{"published": ts})
	require.NoError(t, err)
	assert.Equal(t, `{"published":{"$timestamp":"2024-03-01T12:30:00.5Z"}}`, string(got))
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2023, 11, 5, 8, 0, 0, 0, time.UTC))
	orig := Object{
		"title":     String("Post"),
		"views":     Int(10),
		"published": ts,
		"comments": Array{
			Object{"body": String("nice"), "published": ts},
		},
	}
	data, err := Marshal(orig)
	require.NoError(t, err)

	back, err := UnmarshalObject(data)
	require.NoError(t, err)
	assert.True(t, Equal(orig, back), "round trip changed the document: %s", data)
}

func TestUnmarshal_RejectsFloats(t *testing.T) {
	_, err := Unmarshal([]byte(`{"views": 1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestUnmarshalObject_RejectsNonObject(t *testing.T) {
	_, err := UnmarshalObject([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestUnmarshal_TimestampNeedsSingleKey(t *testing.T) {
	v, err := Unmarshal([]byte(`{"$timestamp":"2024-01-01T00:00:00Z","other":1}`))
	require.NoError(t, err)
	_, isObj := v.(Object)
	assert.True(t, isObj)
}

func TestVersion_StableAcrossKeyOrder(t *testing.T) {
	a := Object{"a": Int(1), "b": String("x")}
	b := Object{"b": String("x"), "a": Int(1)}

	va, err := Version(a)
	require.NoError(t, err)
	vb, err := Version(b)
	require.NoError(t, err)
	assert.Equal(t, va, vb)
	assert.Len(t, va, 64)

	c := Object{"a": Int(2), "b": String("x")}
	vc, err := Version(c)
	require.NoError(t, err)
	assert.NotEqual(t, va, vc)
}
