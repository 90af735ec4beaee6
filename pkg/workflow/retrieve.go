package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"medflow/pkg/gateway"
	"medflow/pkg/logx"
	"medflow/pkg/policy"
)

// InformationRetrievalStep fetches a patient record and renders it as a
// deterministic textual summary for direct display.
type InformationRetrievalStep struct {
	gateway gateway.Gateway
	policy  *policy.Policy
	logger  *logx.Logger
}

// NewInformationRetrievalStep wires the step against its collaborators.
func NewInformationRetrievalStep(gw gateway.Gateway, pol *policy.Policy) *InformationRetrievalStep {
	return &InformationRetrievalStep{
		gateway: gw,
		policy:  pol,
		logger:  logx.NewLogger("retrieval"),
	}
}

// Retrieve fetches and formats the record, storing the summary on the state.
// Gateway failures become typed workflow failures with distinct guidance for
// not-found versus unavailable.
func (s *InformationRetrievalStep) Retrieve(ctx context.Context, state *WorkflowState) {
	state.RecordStep("information-retrieval")

	record, err := s.gateway.Fetch(ctx, state.PatientID)
	if err != nil {
		if ctx.Err() != nil {
			state.Abandon()
			state.SetFailure(FailureAborted, "The request was cancelled before the record was fetched.")
			return
		}
		kind, message := failureFromGateway(err, state.PatientID)
		s.logger.Warn("Record fetch failed for patient %s: %v", state.PatientID, err)
		state.SetFailure(kind, message)
		return
	}

	state.Record = record
	state.Summary = FormatSummary(record, s.policy)
}

// FormatSummary renders a normalized record with stable field ordering:
// name, age, gender, then medical fields in the policy's canonical order.
// Fetch order never influences the output.
func FormatSummary(record *gateway.NormalizedRecord, pol *policy.Policy) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Patient: %s\n", record.Personal.Name))
	if record.Personal.Age > 0 {
		sb.WriteString(fmt.Sprintf("Age: %d\n", record.Personal.Age))
	}
	if record.Personal.Gender != "" {
		sb.WriteString(fmt.Sprintf("Gender: %s\n", record.Personal.Gender))
	}

	written := map[string]bool{}
	for _, field := range pol.CanonicalFields() {
		if v, ok := record.Medical[field]; ok {
			if normalized, usable := NormalizeValue(v); usable {
				sb.WriteString(fmt.Sprintf("%s: %s\n", field, formatValue(normalized)))
				written[field] = true
			}
		}
	}

	// Medical fields outside every profile still belong in the summary;
	// sort-free canonical order covers only policy fields, so the remainder
	// goes last in lexical order for stability.
	var rest []string
	for field := range record.Medical {
		if !written[field] {
			if _, usable := NormalizeValue(record.Medical[field]); usable {
				rest = append(rest, field)
			}
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		normalized, _ := NormalizeValue(record.Medical[field])
		sb.WriteString(fmt.Sprintf("%s: %s\n", field, formatValue(normalized)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
