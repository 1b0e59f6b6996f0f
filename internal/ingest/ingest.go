// Package ingest loads batch questions and official market records from
// CSV, YAML, JSON and XLSX files.
package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/resolution-cli/internal/model"
)

// Question is one batch input: the natural-language question and, when
// known, the market it belongs to and its official outcome.
type Question struct {
	UserInput       string        `json:"user_input" yaml:"user_input"`
	MarketID        string        `json:"market_id,omitempty" yaml:"market_id,omitempty"`
	OfficialOutcome model.Outcome `json:"official_outcome,omitempty" yaml:"official_outcome,omitempty"`
}

// Source returns the official record for the question, or nil when the
// question carries no market id.
func (q Question) Source() *model.SourceInfo {
	if q.MarketID == "" {
		return nil
	}
	outcome := q.OfficialOutcome
	if outcome == "" {
		outcome = model.OutcomeUnknown
	}
	return &model.SourceInfo{MarketID: q.MarketID, Question: q.UserInput, OfficialOutcome: outcome}
}

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// Column aliases accepted in tabular files, matched case-insensitively.
var (
	questionCols = []string{"user_input", "question", "prompt"}
	marketCols   = []string{"market_id", "market", "id"}
	outcomeCols  = []string{"official_outcome", "outcome", "resolution"}
	sourceCols   = []string{"source", "source_url"}
	resolvedCols = []string{"resolved_at", "resolution_date"}
	runCols      = []string{"run_id"}
)

// LoadQuestions reads batch questions from path. Rows without a question
// are skipped.
func LoadQuestions(path string) ([]Question, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var qs []Question
	switch format {
	case FormatYAML, FormatJSON:
		if err := decodeFile(path, format, &qs); err != nil {
			return nil, err
		}
	default:
		t, err := readTable(path, format)
		if err != nil {
			return nil, err
		}
		for _, row := range t.rows {
			qs = append(qs, Question{
				UserInput:       t.get(row, questionCols),
				MarketID:        t.get(row, marketCols),
				OfficialOutcome: parseOptionalOutcome(t.get(row, outcomeCols)),
			})
		}
	}

	out := qs[:0]
	for _, q := range qs {
		q.UserInput = strings.TrimSpace(q.UserInput)
		q.MarketID = strings.TrimSpace(q.MarketID)
		if q.OfficialOutcome != "" {
			q.OfficialOutcome = model.ParseOutcome(string(q.OfficialOutcome))
		}
		if q.UserInput == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// LoadSources reads official market records from path. Outcomes are
// normalized; records without a market id are rejected.
func LoadSources(path string) ([]model.SourceInfo, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var srcs []model.SourceInfo
	switch format {
	case FormatYAML, FormatJSON:
		if err := decodeFile(path, format, &srcs); err != nil {
			return nil, err
		}
	default:
		t, err := readTable(path, format)
		if err != nil {
			return nil, err
		}
		for _, row := range t.rows {
			srcs = append(srcs, model.SourceInfo{
				MarketID:        t.get(row, marketCols),
				Question:        t.get(row, questionCols),
				OfficialOutcome: model.Outcome(t.get(row, outcomeCols)),
				Source:          t.get(row, sourceCols),
				ResolvedAt:      t.get(row, resolvedCols),
				RunID:           t.get(row, runCols),
			})
		}
	}

	for i := range srcs {
		srcs[i] = NormalizeSource(srcs[i])
		if srcs[i].MarketID == "" {
			return nil, eris.Errorf("ingest: record %d has no market_id", i+1)
		}
	}
	return srcs, nil
}

// NormalizeSource trims identifiers and canonicalizes the official outcome.
func NormalizeSource(s model.SourceInfo) model.SourceInfo {
	s.MarketID = strings.TrimSpace(s.MarketID)
	s.RunID = strings.TrimSpace(s.RunID)
	s.OfficialOutcome = model.ParseOutcome(string(s.OfficialOutcome))
	return s
}

func parseOptionalOutcome(s string) model.Outcome {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return model.ParseOutcome(s)
}

// decodeFile decodes a YAML or JSON document holding a list of records.
func decodeFile(path string, format Format, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "ingest: read %s", path)
	}
	if format == FormatJSON {
		return eris.Wrapf(json.Unmarshal(data, v), "ingest: decode json %s", path)
	}
	return eris.Wrapf(yaml.Unmarshal(data, v), "ingest: decode yaml %s", path)
}
