package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartLine_RecordShape(t *testing.T) {
	line := CartLine{
		Key:       "5|attachments:25=3,27=2",
		VariantID: 5,
		Quantity:  2,
		Options:   Options{"checked": true},
		Payload: Payload{
			{Name: "attachments", Value: IntMapping(map[int64]int64{27: 2, 25: 3})},
			{Name: "note", Value: String("gift")},
			{Name: "quantity", Value: Int(99)},
		},
	}

	data, err := json.Marshal(line)
	require.NoError(t, err)
	assert.Equal(t,
		`{"variantId":5,"quantity":2,"key":"5|attachments:25=3,27=2","options":{"checked":true},"attachments":{"25":3,"27":2},"note":"gift"}`,
		string(data))
}

func TestCartLine_HydratesPayloadInRecordOrder(t *testing.T) {
	record := `{"note":"x","variantId":7,"quantity":3,"key":"7|note:x","options":{"checked":false},"attachments":{"25":1},"rush":true}`

	var line CartLine
	require.NoError(t, json.Unmarshal([]byte(record), &line))

	assert.Equal(t, int64(7), line.VariantID)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, "7|note:x", line.Key)
	assert.False(t, line.Checked())
	require.Len(t, line.Payload, 3)
	assert.Equal(t, "note", line.Payload[0].Name)
	assert.Equal(t, "attachments", line.Payload[1].Name)
	assert.Equal(t, "rush", line.Payload[2].Name)
	assert.Equal(t, "1", line.Payload[2].Value.Text())
	assert.Equal(t, map[int64]int64{25: 1}, line.Attachments())
}

func TestCartLine_NilOptionsMarshalAsObject(t *testing.T) {
	data, err := json.Marshal(CartLine{Key: "1", VariantID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"variantId":1,"quantity":1,"key":"1","options":{}}`, string(data))
}

func TestCartLine_AttachmentsAbsent(t *testing.T) {
	assert.Nil(t, CartLine{}.Attachments())

	line := CartLine{Payload: Payload{{Name: "attachments", Value: String("none")}}}
	assert.Nil(t, line.Attachments())
}

func TestOptions_Checked(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want bool
	}{
		{"nil options", nil, true},
		{"missing flag", Options{"gift": true}, true},
		{"null flag", Options{"checked": nil}, true},
		{"true", Options{"checked": true}, true},
		{"false", Options{"checked": false}, false},
		{"zero number", Options{"checked": float64(0)}, false},
		{"one number", Options{"checked": float64(1)}, true},
		{"string zero", Options{"checked": "0"}, false},
		{"empty string", Options{"checked": ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Checked())
		})
	}
}

func TestOptions_WithCheckedCopies(t *testing.T) {
	orig := Options{"gift": "yes"}
	next := orig.WithChecked(false)

	assert.False(t, next.Checked())
	assert.Equal(t, "yes", next["gift"])
	_, touched := orig["checked"]
	assert.False(t, touched)
}
