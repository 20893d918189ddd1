package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_DecodeKeepsFieldOrder(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":"1","alpha":2,"mid":{"b":1,"a":2}}`), &p))

	require.Len(t, p, 3)
	assert.Equal(t, "zeta", p[0].Name)
	assert.Equal(t, "alpha", p[1].Name)
	assert.Equal(t, "mid", p[2].Name)
	assert.Equal(t, KindMapping, p[2].Value.Kind())
	assert.Equal(t, []Entry{{Key: "a", Value: "2"}, {Key: "b", Value: "1"}}, p[2].Value.Entries())
}

func TestPayload_DecodeShapes(t *testing.T) {
	var p Payload
	raw := `{"list":["x","y"],"none":null,"flag":false,"nested":{"k":{"deep":1}},"num":1.50}`
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	_, ok := p.Get("none")
	assert.False(t, ok, "null fields are dropped")

	list, ok := p.Get("list")
	require.True(t, ok)
	assert.Equal(t, []Entry{{Key: "0", Value: "x"}, {Key: "1", Value: "y"}}, list.Entries())

	flag, _ := p.Get("flag")
	assert.Equal(t, KindScalar, flag.Kind())
	assert.Equal(t, "", flag.Text())
	assert.False(t, flag.Skippable(), "false is not an empty string")

	nested, _ := p.Get("nested")
	assert.Equal(t, []Entry{{Key: "k", Value: `{"deep":1}`}}, nested.Entries())

	num, _ := p.Get("num")
	assert.Equal(t, "1.50", num.Text())
}

func TestPayload_EncodeRoundTrip(t *testing.T) {
	p := Payload{
		{Name: "b", Value: String("two")},
		{Name: "a", Value: IntMapping(map[int64]int64{10: 1, 2: 5})},
		{Name: "c", Value: Bool(true)},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"two","a":{"2":5,"10":1},"c":true}`, string(data))

	var back Payload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestPayload_SetReplacesInPlace(t *testing.T) {
	p := Payload{{Name: "a", Value: String("1")}, {Name: "b", Value: String("2")}}

	q := p.Set("a", String("3"))
	assert.Equal(t, "3", q[0].Value.Text())
	assert.Equal(t, "1", p[0].Value.Text(), "Set must not mutate the receiver")

	q = q.Set("c", String("4"))
	assert.Len(t, q, 3)
}

func TestPayload_RejectsNonObject(t *testing.T) {
	var p Payload
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &p))
}
