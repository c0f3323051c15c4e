package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/report"
)

func TestParseKinds(t *testing.T) {
	all, err := parseKinds("")
	require.NoError(t, err)
	assert.Equal(t, report.Kinds(), all)

	kinds, err := parseKinds("sales, inventory")
	require.NoError(t, err)
	assert.Equal(t, []report.Kind{report.KindSales, report.KindInventory}, kinds)

	_, err = parseKinds("sales,weather")
	assert.ErrorContains(t, err, `"weather"`)
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(options{period: "custom", start: "2024-03-01", end: "2024-03-07"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, period.Custom, p.Period)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC), p.End)

	_, err = parseParams(options{start: "03/01/2024"}, time.UTC)
	assert.Error(t, err)
}
