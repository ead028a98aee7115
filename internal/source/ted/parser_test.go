package ted_test

import (
	"encoding/json"
	"testing"
	"time"

	"tendly/internal/errs"
	"tendly/internal/source/ted"

	"github.com/stretchr/testify/require"
)

func TestParseNotice(t *testing.T) {
	raw := `{
		"ND": "145123-2024",
		"PD": "20240305",
		"TI": {"fra": "Travaux routiers", "eng": "Road works"},
		"CY": ["FRA"],
		"TD": ["3"],
		"NC": ["1"],
		"DT": ["2024-04-10"],
		"total-value": [{"amount": "2 500 000", "currency": "eur"}]
	}`
	nt, err := ted.NewParser().Parse(json.RawMessage(raw))
	require.NoError(t, err)

	tn := nt.Tender
	require.Equal(t, "145123-2024", tn.NoticeID)
	require.Equal(t, "Road works", tn.Title)
	require.Equal(t, "Road works", tn.Description)
	require.Equal(t, "FRA", tn.BuyerID)
	require.Equal(t, "FRA Contracting Authority", tn.BuyerName)
	require.Equal(t, "active", tn.Status)
	require.Equal(t, "1", tn.Stage)
	require.Equal(t, "works", tn.MainProcurementCategory)
	require.NotNil(t, tn.ValueAmount)
	require.InDelta(t, 2500000.0, *tn.ValueAmount, 0.001)
	require.Equal(t, "EUR", tn.ValueCurrency)
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *tn.PublicationDate)
	require.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), *tn.TenderPeriodEnd)
	require.Empty(t, nt.Lots)
	require.Empty(t, nt.Documents)
}

func TestParseNoticeDefaults(t *testing.T) {
	raw := `{"publication-number": "99-2024", "TI": {"deu": "Bauarbeiten", "ces": "Stavba"}, "TD": "42", "NC": "x"}`
	nt, err := ted.NewParser().Parse(json.RawMessage(raw))
	require.NoError(t, err)

	tn := nt.Tender
	require.Equal(t, "99-2024", tn.NoticeID)
	// без английского - первый язык по алфавиту
	require.Equal(t, "Stavba", tn.Title)
	require.Equal(t, "active", tn.Status)
	require.Equal(t, "services", tn.MainProcurementCategory)
	require.Nil(t, tn.ValueAmount)
	require.Equal(t, "EUR", tn.ValueCurrency)
	require.Empty(t, tn.BuyerName)
	require.Nil(t, tn.PublicationDate)
}

func TestParseValueFallbackChain(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		amount   float64
		currency string
	}{
		{"number", `{"ND":"1","total-value":125000}`, 125000, "EUR"},
		{"zero falls through", `{"ND":"1","total-value":0,"result-value-cur-lot":"PLN 40,000"}`, 40000, "PLN"},
		{"framework map", `{"ND":"1","framework-value-notice":{"val":"900.5","cur":"sek"}}`, 900.5, "SEK"},
		{"estimated list", `{"ND":"1","BT-27-Lot":["1200 GBP"]}`, 1200, "GBP"},
		{"nan falls through", `{"ND":"1","total-value":"NaN","BT-27-Lot":"300"}`, 300, "EUR"},
		{"infinity falls through", `{"ND":"1","total-value":"Infinity","BT-27-Lot":"310"}`, 310, "EUR"},
		{"overflow falls through", `{"ND":"1","total-value":"1e400","BT-27-Lot":"320"}`, 320, "EUR"},
		{"odd currency keeps default", `{"ND":"1","framework-value-notice":{"val":"50","cur":"Swedish krona"}}`, 50, "EUR"},
		{"non-letter currency keeps default", `{"ND":"1","framework-value-notice":{"val":"60","cur":"E1R"}}`, 60, "EUR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nt, err := ted.NewParser().Parse(json.RawMessage(tc.raw))
			require.NoError(t, err)
			require.NotNil(t, nt.Tender.ValueAmount)
			require.InDelta(t, tc.amount, *nt.Tender.ValueAmount, 0.001)
			require.Equal(t, tc.currency, nt.Tender.ValueCurrency)
		})
	}
}

func TestParseNonFiniteValueIsMissing(t *testing.T) {
	for _, v := range []string{`"NaN"`, `"-Infinity"`, `"1e400"`, `["inf"]`} {
		nt, err := ted.NewParser().Parse(json.RawMessage(`{"ND":"1","total-value":` + v + `}`))
		require.NoError(t, err)
		require.Nil(t, nt.Tender.ValueAmount, "total-value=%s", v)
		require.Equal(t, "EUR", nt.Tender.ValueCurrency)
	}
}

func TestParseStatusAndCategoryCodes(t *testing.T) {
	for code, want := range map[string]string{"1": "planned", "4": "complete", "6": "complete", "9": "active"} {
		nt, err := ted.NewParser().Parse(json.RawMessage(`{"ND":"1","TD":"` + code + `"}`))
		require.NoError(t, err)
		require.Equal(t, want, nt.Tender.Status, "TD=%s", code)
	}
	for code, want := range map[string]string{"2": "supplies", "6": "works", "7": "services", "8": "supplies"} {
		nt, err := ted.NewParser().Parse(json.RawMessage(`{"ND":"1","NC":["` + code + `"]}`))
		require.NoError(t, err)
		require.Equal(t, want, nt.Tender.MainProcurementCategory, "NC=%s", code)
	}
}

func TestParseNoticeErrors(t *testing.T) {
	for _, raw := range []string{`{"TI":"no id"}`, `null`, `[1,2]`, `{"ND":`} {
		_, err := ted.NewParser().Parse(json.RawMessage(raw))
		require.Error(t, err, raw)
		require.True(t, errs.IsParse(err), raw)
	}
}
