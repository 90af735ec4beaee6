// Package workflow implements the multi-step clinical workflow engine: intent
// classification, patient data retrieval, sufficiency gating, interactive
// clarification and diagnostic inference, driven by a single orchestrating
// state machine.
package workflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"medflow/pkg/gateway"
)

// Intent is the classified purpose of a doctor query.
type Intent string

const (
	// IntentUnclassified is the zero value before classification runs.
	IntentUnclassified Intent = ""
	// IntentInformationRetrieval requests patient data for display.
	IntentInformationRetrieval Intent = "information_retrieval"
	// IntentDiagnosis requests a diagnostic assessment.
	IntentDiagnosis Intent = "diagnosis"
)

// WorkflowState is the single mutable record threaded through every step of
// one request. It is owned by the Orchestrator and handed to exactly one step
// at a time, so no internal locking is needed.
type WorkflowState struct {
	ID        string // Request correlation ID
	Query     string // Raw doctor input, immutable after creation
	PatientID string

	intent Intent // Write-once; see SetIntent

	Record               *gateway.NormalizedRecord
	MissingFields        []string          // Recomputed by the gate each run
	ClarificationAnswers map[string]string // Merge-only across rounds

	Report  string // Set exactly once by the diagnosis step
	Summary string // Set exactly once by the retrieval step

	FailureKind  FailureKind
	ErrorMessage string

	stepHistory []string
	abandoned   bool
}

// NewWorkflowState creates the state for one incoming request.
func NewWorkflowState(query, patientID string) (*WorkflowState, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("patient id must not be empty")
	}

	return &WorkflowState{
		ID:                   uuid.New().String(),
		Query:                query,
		PatientID:            patientID,
		ClarificationAnswers: make(map[string]string),
	}, nil
}

// SetIntent assigns the classified intent. The intent is write-once; a second
// assignment indicates an orchestration bug and is rejected.
func (s *WorkflowState) SetIntent(intent Intent) error {
	if s.intent != IntentUnclassified {
		return fmt.Errorf("intent already set to %s", s.intent)
	}
	if intent == IntentUnclassified {
		return fmt.Errorf("cannot set unclassified intent")
	}
	s.intent = intent
	return nil
}

// Intent returns the classified intent.
func (s *WorkflowState) Intent() Intent {
	return s.intent
}

// RecordStep appends one entry to the audit trail.
func (s *WorkflowState) RecordStep(name string) {
	s.stepHistory = append(s.stepHistory, name)
}

// Steps returns a copy of the audit trail.
func (s *WorkflowState) Steps() []string {
	steps := make([]string, len(s.stepHistory))
	copy(steps, s.stepHistory)
	return steps
}

// SetFailure marks the workflow failed. The first failure wins; later steps
// never run after a failure, so a second call indicates a bug but must not
// mask the original error.
func (s *WorkflowState) SetFailure(kind FailureKind, message string) {
	if s.Failed() {
		return
	}
	s.FailureKind = kind
	s.ErrorMessage = message
}

// Failed reports whether a failure has been recorded.
func (s *WorkflowState) Failed() bool {
	return s.ErrorMessage != ""
}

// MergeAnswers folds one round of clarification answers into the state.
// New keys are added, existing keys are overwritten by the latest answer;
// nothing is ever removed mid-workflow.
func (s *WorkflowState) MergeAnswers(answers map[string]string) {
	for k, v := range answers {
		s.ClarificationAnswers[k] = v
	}
}

// Abandon marks the request cancelled. No step runs on an abandoned state.
func (s *WorkflowState) Abandon() {
	s.abandoned = true
}

// Abandoned reports whether the enclosing request was cancelled.
func (s *WorkflowState) Abandoned() bool {
	return s.abandoned
}
