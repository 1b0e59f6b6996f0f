package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/resolution-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"q.csv", FormatCSV},
		{"q.YAML", FormatYAML},
		{"q.yml", FormatYAML},
		{"q.json", FormatJSON},
		{"dir/q.xlsx", FormatXLSX},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := DetectFormat("q.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoadQuestions_CSV(t *testing.T) {
	path := writeFile(t, "questions.csv", strings.Join([]string{
		"Question,Market_ID,Outcome",
		"# comment line",
		`"Will it rain in NYC on 2025-03-01?",mkt-1,yes`,
		",mkt-2,no",
		"Will BTC close above $100k?,,",
		"",
	}, "\n"))

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, qs, 2, "rows without a question are skipped")

	assert.Equal(t, "Will it rain in NYC on 2025-03-01?", qs[0].UserInput)
	assert.Equal(t, "mkt-1", qs[0].MarketID)
	assert.Equal(t, model.OutcomeYes, qs[0].OfficialOutcome)

	assert.Equal(t, "Will BTC close above $100k?", qs[1].UserInput)
	assert.Empty(t, qs[1].MarketID)
	assert.Empty(t, qs[1].OfficialOutcome)
	assert.Nil(t, qs[1].Source())
}

func TestLoadQuestions_YAML(t *testing.T) {
	path := writeFile(t, "questions.yaml", `
- user_input: "  Will the Fed cut rates in March?  "
  market_id: fed-mar
  official_outcome: " No "
- user_input: ""
- user_input: Will ETH flip BTC?
`)

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Will the Fed cut rates in March?", qs[0].UserInput)
	assert.Equal(t, model.OutcomeNo, qs[0].OfficialOutcome)

	src := qs[0].Source()
	require.NotNil(t, src)
	assert.Equal(t, "fed-mar", src.MarketID)
	assert.Equal(t, model.OutcomeNo, src.OfficialOutcome)
}

func TestLoadQuestions_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"prompt", "market"},
			{"Will team A win?", "m-a"},
			{"", ""},
			{"Will team B win?", "m-b"},
		},
	})

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Will team A win?", qs[0].UserInput)
	assert.Equal(t, "m-b", qs[1].MarketID)

	src := qs[1].Source()
	require.NotNil(t, src)
	assert.Equal(t, model.OutcomeUnknown, src.OfficialOutcome)
}

func TestLoadQuestions_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "user_input: [")
	_, err := LoadQuestions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode yaml")
}

func TestLoadSources_JSON(t *testing.T) {
	path := writeFile(t, "sources.json", `[
		{"market_id":" mkt-1 ","official_outcome":"yes","source":"https://example.com/r"},
		{"market_id":"mkt-2","official_outcome":"maybe"}
	]`)

	srcs, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "mkt-1", srcs[0].MarketID)
	assert.Equal(t, model.OutcomeYes, srcs[0].OfficialOutcome)
	assert.Equal(t, "https://example.com/r", srcs[0].Source)
	assert.Equal(t, model.OutcomeUnknown, srcs[1].OfficialOutcome)
}

func TestLoadSources_CSV(t *testing.T) {
	path := writeFile(t, "sources.csv", "market_id,official_outcome,run_id,resolved_at\nmkt-1,INVALID,run-9,2025-01-02\n")

	srcs, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, model.SourceInfo{
		MarketID:        "mkt-1",
		OfficialOutcome: model.OutcomeInvalid,
		RunID:           "run-9",
		ResolvedAt:      "2025-01-02",
	}, srcs[0])
}

func TestLoadSources_MissingMarketID(t *testing.T) {
	path := writeFile(t, "sources.yaml", "- official_outcome: YES\n")
	_, err := LoadSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1 has no market_id")
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Questions": {{"question"}, {"q1"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Questions"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"question"}, {"q1"}}, rows)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadTable_EmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	_, err := LoadQuestions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}
