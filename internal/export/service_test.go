package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

func analyzed(t *testing.T, name string) pipeline.Result {
	t.Helper()
	p := pipeline.NewProcessor(nil, nil, nil, nil)
	r, err := p.Compute(finance.PolicyRecord{
		ProductName:      name,
		FirstYearPremium: 1000,
		PaymentYears:     5,
		BenefitTable: []finance.BenefitRow{
			{Year: 1, CashValue: 500},
			{Year: 3, CashValue: 3200},
			{Year: 5, CashValue: 5500},
			{Year: 10, CashValue: 12000},
		},
	})
	require.NoError(t, err)
	r.FileName = name + ".pdf"
	return r
}

func TestExportComparisonXLSX(t *testing.T) {
	results := []pipeline.Result{
		analyzed(t, "XYZ"),
		{FileName: "broken.pdf", Status: constants.DocumentStatusFailed, Error: "parse: bad"},
		analyzed(t, "XYZ"),
		analyzed(t, "a/b:c"),
	}

	out, err := NewService(nil).ExportComparisonXLSX(context.Background(), results)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Comparison", "XYZ", "XYZ (2)", "a b c"}, f.GetSheetList())

	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "File", rows[0][0])
	assert.Equal(t, "XYZ", rows[1][1])
	assert.Equal(t, "5000", rows[1][6])
	assert.Equal(t, "3", rows[1][7])
	assert.Equal(t, "OK", rows[1][11])
	assert.Equal(t, "FAILED", rows[2][11])
	assert.Equal(t, "parse: bad", rows[2][12])

	sched, err := f.GetRows("XYZ")
	require.NoError(t, err)
	require.Len(t, sched, 5)
	assert.Equal(t, []string{"Year", "Cash Value", "Surrender Value", "Cumulative Premium", "Net Cashflow", "IRR %"}, sched[0])
	assert.Equal(t, "1", sched[1][0])
	assert.Equal(t, "-500", sched[1][4])
	assert.Equal(t, "3000", sched[2][3])
	assert.Equal(t, "7000", sched[4][4])
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{"comparison": true}
	long := strings.Repeat("长", 40)

	first := uniqueSheetName(long, used)
	assert.Equal(t, 31, len([]rune(first)))
	second := uniqueSheetName(long, used)
	assert.Equal(t, 31, len([]rune(second)))
	assert.True(t, strings.HasSuffix(second, " (2)"))
	assert.Equal(t, "Comparison (2)", uniqueSheetName("Comparison", used))
}
