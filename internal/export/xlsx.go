// Package export writes run history to spreadsheets.
package export

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/resolution-cli/internal/match"
	"github.com/sells-group/resolution-cli/internal/model"
)

// Sheet names.
const (
	SheetRuns     = "Runs"
	SheetEvidence = "Evidence"
)

var (
	runHeader = []string{
		"run_id", "market_id", "phase", "outcome", "confidence", "execution_mode",
		"verification_ok", "duration_ms", "por_root", "evidence_count", "errors", "match_status", "created_at",
	}
	evidenceHeader = []string{
		"run_id", "evidence_id", "source_name", "source_uri", "tier", "success", "error", "excerpt", "content_hash",
	}
)

// WriteRuns writes one row per run to the Runs sheet and one row per
// evidence item to the Evidence sheet. When sources is non-nil, the
// match status of each run against its market's official record is
// computed and written alongside.
func WriteRuns(w io.Writer, runs []model.Run, sources map[string]model.SourceInfo) error {
	f := xlsx.NewFile()

	runSheet, err := f.AddSheet(SheetRuns)
	if err != nil {
		return eris.Wrap(err, "export: add runs sheet")
	}
	evSheet, err := f.AddSheet(SheetEvidence)
	if err != nil {
		return eris.Wrap(err, "export: add evidence sheet")
	}
	addRow(runSheet, runHeader...)
	addRow(evSheet, evidenceHeader...)

	for _, r := range runs {
		s := r.Summary
		if s == nil {
			addRow(runSheet, r.ID, r.MarketID, string(r.Phase), "", "", "", "", "", "", "0", "", "",
				r.CreatedAt.Format(time.RFC3339))
			continue
		}

		status := ""
		if sources != nil {
			marketID := firstNonEmpty(s.MarketID, r.MarketID)
			if src, ok := sources[marketID]; ok {
				status = string(match.Evaluate(src, s))
			} else {
				status = string(model.MatchStatusPending)
			}
		}

		addRow(runSheet,
			r.ID,
			firstNonEmpty(s.MarketID, r.MarketID),
			string(r.Phase),
			string(s.Outcome),
			strconv.FormatFloat(s.Confidence, 'f', 4, 64),
			string(s.ExecutionMode),
			strconv.FormatBool(s.VerificationOK),
			strconv.FormatInt(s.DurationMS, 10),
			s.PoRRoot,
			strconv.Itoa(len(s.EvidenceItems)),
			strings.Join(s.Errors, "; "),
			status,
			r.CreatedAt.Format(time.RFC3339),
		)

		for _, it := range s.EvidenceItems {
			errMsg := ""
			if it.Error != nil {
				errMsg = *it.Error
			}
			addRow(evSheet,
				r.ID,
				it.EvidenceID,
				it.SourceName,
				it.SourceURI,
				strconv.Itoa(it.Tier),
				strconv.FormatBool(it.Success),
				errMsg,
				it.ParsedExcerpt,
				it.ContentHash,
			)
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// SourceIndex keys official records by market id. Later records win.
func SourceIndex(srcs []model.SourceInfo) map[string]model.SourceInfo {
	idx := make(map[string]model.SourceInfo, len(srcs))
	for _, s := range srcs {
		idx[s.MarketID] = s
	}
	return idx
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
