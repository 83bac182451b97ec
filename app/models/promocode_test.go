package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraDays(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ExtraDays
	}{
		{"object", `{"1":3,"3":7}`, ExtraDays{1: 3, 3: 7}},
		{"string values", `{"6":"14"}`, ExtraDays{6: 14}},
		{"fractional days truncate", `{"12":30.9}`, ExtraDays{12: 30}},
		{"double encoded", `"{\"3\":7}"`, ExtraDays{3: 7}},
		{"empty", ``, ExtraDays{}},
		{"null", `null`, ExtraDays{}},
		{"empty string", `""`, ExtraDays{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseExtraDays([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseExtraDays_Invalid(t *testing.T) {
	for _, raw := range []string{`{broken`, `{"x":1}`, `{"1":"many"}`, `[1,2]`} {
		_, err := ParseExtraDays([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestExtraDays_For(t *testing.T) {
	var none ExtraDays
	assert.Zero(t, none.For(3))
	assert.Equal(t, 7, ExtraDays{3: 7}.For(3))
	assert.Zero(t, ExtraDays{3: 7}.For(1))
}

func TestExtraDays_ScanAndValue(t *testing.T) {
	var e ExtraDays
	require.NoError(t, e.Scan([]byte(`{"1":2}`)))
	assert.Equal(t, ExtraDays{1: 2}, e)

	v, err := e.Value()
	require.NoError(t, err)
	var back map[string]int
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &back))
	assert.Equal(t, map[string]int{"1": 2}, back)

	require.NoError(t, e.Scan(nil))
	assert.Empty(t, e)
	assert.Error(t, e.Scan(42))
}

func TestProviderData_MergeKeepsKnownIDs(t *testing.T) {
	prev := ProviderData{PaymentID: "p1", InvoiceID: "i1", LastStatus: "waiting", ActuallyPaid: 5}
	next := ProviderData{LastStatus: "finished", ActuallyPaid: 30}

	merged := prev.Merge(next)
	assert.Equal(t, "p1", merged.PaymentID)
	assert.Equal(t, "i1", merged.InvoiceID)
	assert.Equal(t, "finished", merged.LastStatus)
	assert.InDelta(t, 30, merged.ActuallyPaid, 1e-9)
	assert.Equal(t, ProviderDataVersion, merged.Version)
}

func TestUser_Identifiers(t *testing.T) {
	tg := int64(42)
	u := User{ID: 7, Role: ROLE_ADMIN, TelegramID: &tg, DiscordID: " "}

	assert.True(t, u.IsOperator())
	assert.True(t, u.HasTelegram())
	assert.False(t, u.HasDiscord())
	assert.Equal(t, "tg:42", u.DisplayName())
	assert.Equal(t, "user#7", (&User{ID: 7}).DisplayName())
	assert.Equal(t, "@bob", (&User{Username: "@bob"}).DisplayName())
}
