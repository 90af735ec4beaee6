package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"medflow/pkg/inference"
	"medflow/pkg/llm"
	"medflow/pkg/logx"
	"medflow/pkg/policy"
	"medflow/pkg/utils"
)

// maxPolishPromptTokens caps the report-polishing prompt. Oversized prompts
// skip polishing and ship the locally assembled report instead.
const maxPolishPromptTokens = 3000

const polishSystemPrompt = `You are a clinical documentation assistant. You receive a draft diagnostic report about a patient. Rewrite it as a concise, well-structured clinical note for the treating physician. Preserve every finding, number and risk factor exactly as given. Do not add findings, recommendations or diagnoses that are not in the draft.`

// DiagnosisStep runs the inference model on the merged patient input and
// produces the diagnostic report. A language model polishes the report
// wording when available; the deterministic local report is the fallback, so
// a report is never fabricated and never lost to a polishing failure.
type DiagnosisStep struct {
	adapter  inference.Adapter
	polisher llm.Client // nil disables polishing
	policy   *policy.Policy
	tokens   *utils.TokenCounter
	logger   *logx.Logger
}

// NewDiagnosisStep wires the step. polisher may be nil, in which case the
// locally assembled report is used as-is.
func NewDiagnosisStep(adapter inference.Adapter, polisher llm.Client, pol *policy.Policy, tokens *utils.TokenCounter) *DiagnosisStep {
	return &DiagnosisStep{
		adapter:  adapter,
		polisher: polisher,
		policy:   pol,
		tokens:   tokens,
		logger:   logx.NewLogger("diagnose"),
	}
}

// Diagnose re-checks sufficiency, invokes the inference model once and stores
// the finished report on the state. The sufficiency re-check is load-bearing:
// the step refuses to run the model on an incomplete record even if the
// upstream gate was bypassed.
func (d *DiagnosisStep) Diagnose(ctx context.Context, state *WorkflowState, profile policy.Profile) {
	state.RecordStep("diagnosis")

	missing := EvaluateSufficiency(state.Record, state.ClarificationAnswers, profile)
	if len(missing) > 0 {
		state.SetFailure(FailureInsufficientData,
			fmt.Sprintf("Required information is missing: %v. The diagnosis cannot proceed.", missing))
		return
	}

	input := transformForModel(mergedRecordValues(state.Record, state.ClarificationAnswers), profile)
	modelType := modelTypeFor(profile)

	d.logger.Debug("Invoking %s model for patient %s", modelType, state.PatientID)
	prediction, err := d.adapter.Diagnose(ctx, modelType, input)
	if err != nil {
		if ctx.Err() != nil {
			state.Abandon()
			state.SetFailure(FailureAborted, "The request was cancelled before the diagnosis completed. No report was generated.")
			return
		}
		kind, message := failureFromInference(err)
		d.logger.Warn("Inference failed for patient %s: %v", state.PatientID, err)
		state.SetFailure(kind, message)
		return
	}

	report := assembleReport(state, profile, prediction)
	state.Report = d.polish(ctx, report)
}

// polish asks the language model to rewrite the draft report. Any failure,
// empty output or oversized prompt falls back to the draft unchanged.
func (d *DiagnosisStep) polish(ctx context.Context, draft string) string {
	if d.polisher == nil {
		return draft
	}
	if d.tokens.CountTokens(polishSystemPrompt+draft) > maxPolishPromptTokens {
		d.logger.Debug("Draft report exceeds polish budget, using local report")
		return draft
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(polishSystemPrompt),
		llm.NewUserMessage(draft),
	})
	req.Temperature = 0.3

	resp, err := d.polisher.Complete(ctx, req)
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		d.logger.Warn("Report polishing failed, using local report: %v", err)
		return draft
	}
	return resp.Content
}

// assembleReport renders the deterministic report from the prediction and the
// inputs that produced it. The model's answer is quoted verbatim.
func assembleReport(state *WorkflowState, profile policy.Profile, prediction *inference.Prediction) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Diagnostic Report (patient %s, assessment: %s)\n\n", state.PatientID, profile.Name))
	sb.WriteString("Assessment\n")
	sb.WriteString(prediction.Answer)
	sb.WriteString("\n")

	if len(prediction.Explanations) > 0 {
		sb.WriteString("\nContributing factors\n")
		for _, attr := range prediction.Explanations {
			direction := attr.Direction
			if direction == "" {
				if attr.Impact >= 0 {
					direction = "increases risk"
				} else {
					direction = "decreases risk"
				}
			}
			sb.WriteString(fmt.Sprintf("- %s: impact %.3f (%s)\n", attr.Feature, attr.Impact, direction))
		}
	}

	inputs := mergedRecordValues(state.Record, state.ClarificationAnswers)
	sb.WriteString("\nInputs considered\n")
	for _, field := range profile.Required {
		if v, ok := inputs[field]; ok {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", field, formatValue(v)))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// modelTypeFor maps an assessment profile to the inference service's model
// identifier.
func modelTypeFor(profile policy.Profile) string {
	switch profile.Name {
	case "diabetes-risk":
		return "diabetes"
	case "cardiovascular-risk":
		return "cardiovascular_disease"
	default:
		return profile.Name
	}
}

// transformForModel reshapes merged record values into the field layout the
// inference model was trained on. The diabetes model expects categorical
// strings and derived fields that cardiology-style records carry only in raw
// form.
func transformForModel(values map[string]any, profile policy.Profile) map[string]any {
	if profile.Name != "diabetes-risk" {
		out := make(map[string]any, len(values))
		for k, v := range values {
			out[k] = v
		}
		return out
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}

	if g, ok := out["gender"]; ok {
		out["gender"] = genderLabel(g)
	}
	if s, ok := out["smoke"]; ok {
		out["smoking_history"] = smokingLabel(s)
		delete(out, "smoke")
	}
	if _, ok := out["bmi"]; !ok {
		if bmi, derived := deriveBMI(out); derived {
			out["bmi"] = bmi
		}
	}
	if _, ok := out["hypertension"]; !ok {
		if apHi, isNum := asFloat(out["ap_hi"]); isNum {
			// Systolic at or above 140 mmHg is the stage 2 threshold.
			if apHi >= 140 {
				out["hypertension"] = float64(1)
			} else {
				out["hypertension"] = float64(0)
			}
		}
	}

	return out
}

// genderLabel maps the numeric gender encoding (1 female, 2 male) to the
// categorical label the diabetes model expects. String values pass through
// title-cased.
func genderLabel(v any) string {
	if f, ok := asFloat(v); ok {
		if f == 2 {
			return "Male"
		}
		return "Female"
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "m", "male":
			return "Male"
		case "f", "female":
			return "Female"
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

// smokingLabel collapses the binary smoke flag into the model's categorical
// smoking history.
func smokingLabel(v any) string {
	if f, ok := asFloat(v); ok && f > 0 {
		return "current"
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "current":
			return "current"
		}
	}
	return "never"
}

// deriveBMI computes weight / (height in meters)^2 when both raw fields are
// usable numbers.
func deriveBMI(values map[string]any) (float64, bool) {
	height, hok := asFloat(values["height"])
	weight, wok := asFloat(values["weight"])
	if !hok || !wok || height <= 0 {
		return 0, false
	}
	meters := height / 100
	return weight / (meters * meters), true
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
