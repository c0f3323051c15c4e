package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/period"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatJSON},
		{in: "json", want: FormatJSON},
		{in: "csv", want: FormatCSV},
		{in: "xlsx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.Validation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileName(t *testing.T) {
	res := &Result{Kind: KindSales, Start: now.AddDate(0, 0, -14), End: now}

	assert.Equal(t, "sales-2024-03-01-2024-03-15.csv", FileName(res, FormatCSV, false))
	assert.Equal(t, "sales-2024-03-01-2024-03-15.json.gz", FileName(res, FormatJSON, true))
}

func TestExport_CSV(t *testing.T) {
	e := newTestEngine(fixture())

	var buf bytes.Buffer
	err := e.Export(context.Background(), KindProducts, Params{Period: period.Week}, FormatCSV, false, &buf)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{
		"product_id", "name", "sku", "quantity", "orders",
		"revenue", "cost", "profit", "profit_margin",
	}, records[0])
	assert.Equal(t, []string{"p3", "Gift Card", "SKU-p3", "1", "1", "1000.00", "1000.00", "0.00", "0.00"}, records[1])
}

func TestExport_JSON(t *testing.T) {
	e := newTestEngine(fixture())

	var buf bytes.Buffer
	err := e.Export(context.Background(), KindDashboard, Params{Period: period.Week}, FormatJSON, false, &buf)
	require.NoError(t, err)

	var doc struct {
		Type   string           `json:"type"`
		Period string           `json:"period"`
		Rows   []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "dashboard", doc.Type)
	assert.Equal(t, "week", doc.Period)
	require.NotEmpty(t, doc.Rows)

	first := doc.Rows[0]
	assert.Equal(t, "summary", first["section"])
	assert.Equal(t, "orders", first["label"])
	assert.InDelta(t, 3, first["count"], 0)
	assert.Nil(t, first["amount"])
}

func TestExport_Gzip(t *testing.T) {
	e := newTestEngine(fixture())

	var plain, packed bytes.Buffer
	p := Params{Period: period.Month}
	require.NoError(t, e.Export(context.Background(), KindInventory, p, FormatCSV, false, &plain))
	require.NoError(t, e.Export(context.Background(), KindInventory, p, FormatCSV, true, &packed))

	zr, err := pgzip.NewReader(&packed)
	require.NoError(t, err)
	defer zr.Close()

	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, plain.String(), string(got))
}

func TestExport_UnknownKind(t *testing.T) {
	e := newTestEngine(fixture())

	var buf bytes.Buffer
	err := e.Export(context.Background(), "weather", Params{}, FormatCSV, false, &buf)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Zero(t, buf.Len())
}
