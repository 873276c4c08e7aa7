package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetaOffer(t *testing.T) {
	var m ChatMessage
	raw := json.RawMessage(`{"packageType":"basic","shortContent":"logo and brand kit","price":49.99,"duration":"3 days"}`)
	require.NoError(t, DecodeMeta(KindOffer, raw, &m))

	assert.Equal(t, KindOffer, m.Kind)
	assert.Equal(t, int64(4999), m.PriceMinorUnits)
	assert.Equal(t, "Offer: logo and brand kit", m.Body)
	assert.Empty(t, m.Status)
}

func TestDecodeMetaRejects(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		raw  string
		want error
	}{
		{"unknown field", KindOffer, `{"packageType":"a","shortContent":"b","price":1,"duration":"c","discount":5}`, ErrInvalidMeta},
		{"zero price", KindOrder, `{"orderId":"o1","packageType":"a","price":0,"duration":"c"}`, ErrInvalidPrice},
		{"price overflows cents", KindOffer, `{"packageType":"a","shortContent":"b","price":1e19,"duration":"c"}`, ErrInvalidPrice},
		{"order price overflows cents", KindOrder, `{"orderId":"o1","packageType":"a","price":92233720368547759,"duration":"c"}`, ErrInvalidPrice},
		{"negative price", KindOffer, `{"packageType":"a","shortContent":"b","price":-5,"duration":"c"}`, ErrInvalidPrice},
		{"too many words", KindOffer, `{"packageType":"a","shortContent":"one two three four five six seven eight nine ten eleven twelve thirteen","price":1,"duration":"c"}`, ErrTooManyWords},
		{"missing meta", KindDelivery, ``, ErrInvalidMeta},
		{"meta on text", KindText, `{"x":1}`, ErrInvalidMeta},
		{"missing workDone", KindDelivery, `{"packageType":"a"}`, ErrInvalidMeta},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m ChatMessage
			err := DecodeMeta(tc.kind, json.RawMessage(tc.raw), &m)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDecodeMetaOrderIsPending(t *testing.T) {
	m := ChatMessage{Body: "Website redesign"}
	raw := json.RawMessage(`{"orderId":"ord-7","packageType":"premium","price":120,"duration":"1 week"}`)
	require.NoError(t, DecodeMeta(KindOrder, raw, &m))

	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, int64(12000), m.PriceMinorUnits)
	assert.Equal(t, "Website redesign", m.Body)
}

func TestDecodeMetaLargestPriceStaysPositive(t *testing.T) {
	var m ChatMessage
	raw := json.RawMessage(`{"orderId":"o1","packageType":"a","price":90000000000000000,"duration":"c"}`)
	require.NoError(t, DecodeMeta(KindOrder, raw, &m))
	assert.Positive(t, m.PriceMinorUnits)
}

func TestParseSender(t *testing.T) {
	assert.Equal(t, SenderAdmin, ParseSender("admin"))
	assert.Equal(t, SenderVisitor, ParseSender("user"))
	assert.Equal(t, SenderVisitor, ParseSender(""))
	assert.Equal(t, SenderVisitor, ParseSender("root"))
}
