package summary

import (
	"fmt"
	"strings"

	"github.com/sells-group/resolution-cli/internal/evidence"
	"github.com/sells-group/resolution-cli/internal/model"
)

// Names of the local consistency checks appended to every summary.
const (
	CheckEvidenceIDsUnique  = "evidence_ids_unique"
	CheckReasoningDAGValid  = "reasoning_dag_valid"
	CheckPoRRootsConsistent = "por_roots_consistent"
)

// localChecks runs consistency checks over the composed summary. They are
// informational and never change the outcome.
func localChecks(s model.RunSummary, por *model.PoRBundle) []model.Check {
	var checks []model.Check

	if s.EvidenceBundles != nil {
		var problems []string
		for _, b := range s.EvidenceBundles {
			problems = append(problems, evidence.ValidateBundle(b)...)
		}
		checks = append(checks, model.Check{
			Name:   CheckEvidenceIDsUnique,
			OK:     len(problems) == 0,
			Detail: strings.Join(problems, "; "),
		})
	}

	if s.ReasoningSteps != nil {
		c := model.Check{Name: CheckReasoningDAGValid, OK: true}
		if err := model.ValidateDAG(s.ReasoningSteps); err != nil {
			c.OK = false
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}

	if por != nil {
		var mismatched []string
		compare := func(name, summaryVal, porVal string) {
			if summaryVal != "" && porVal != "" && summaryVal != porVal {
				mismatched = append(mismatched, fmt.Sprintf("%s differs from verdict", name))
			}
		}
		compare("prompt_spec_hash", s.PromptSpecHash, por.PromptSpecHash)
		compare("evidence_root", s.EvidenceRoot, por.EvidenceRoot)
		compare("reasoning_root", s.ReasoningRoot, por.ReasoningRoot)
		if s.PoRRoot != "" && por.PoRRoot != "" && s.PoRRoot != por.PoRRoot {
			mismatched = append(mismatched, "por_root differs from por_bundle")
		}
		checks = append(checks, model.Check{
			Name:   CheckPoRRootsConsistent,
			OK:     len(mismatched) == 0,
			Detail: strings.Join(mismatched, "; "),
		})
	}

	return checks
}
