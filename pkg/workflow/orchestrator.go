package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medflow/pkg/gateway"
	"medflow/pkg/history"
	"medflow/pkg/logx"
	"medflow/pkg/metrics"
	"medflow/pkg/policy"
)

// State is one phase of the workflow state machine.
type State string

const (
	StateWaiting     State = "WAITING"
	StateClassifying State = "CLASSIFYING"
	StateRetrieving  State = "RETRIEVING"
	StateFetching    State = "FETCHING"
	StateClarifying  State = "CLARIFYING"
	StateDiagnosing  State = "DIAGNOSING"
	StateDone        State = "DONE"
	StateError       State = "ERROR"
)

// transitionTable defines the legal phase transitions. Any phase may fail.
var transitionTable = map[State][]State{
	StateWaiting:     {StateClassifying, StateError},
	StateClassifying: {StateRetrieving, StateFetching, StateError},
	StateRetrieving:  {StateDone, StateError},
	StateFetching:    {StateClarifying, StateError},
	StateClarifying:  {StateDiagnosing, StateError},
	StateDiagnosing:  {StateDone, StateError},
	StateDone:        {},
	StateError:       {},
}

// validTransition reports whether from -> to is allowed.
func validTransition(from, to State) bool {
	for _, allowed := range transitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TerminalKind distinguishes the three possible ends of a workflow.
type TerminalKind string

const (
	// TerminalSummary means the request produced a data summary.
	TerminalSummary TerminalKind = "summary"
	// TerminalReport means the request produced a diagnostic report.
	TerminalReport TerminalKind = "report"
	// TerminalFailed means the request ended with a typed failure.
	TerminalFailed TerminalKind = "failed"
)

// TerminalResult is the single outcome of one workflow run. Exactly one of
// Summary and Report is set for successful runs; FailureKind and Message are
// set for failed runs.
type TerminalResult struct {
	RequestID   string
	Kind        TerminalKind
	Intent      Intent
	Summary     string
	Report      string
	FailureKind FailureKind
	Message     string
	Steps       []string
	Rounds      int
}

// Failed reports whether the run ended in failure.
func (r TerminalResult) Failed() bool {
	return r.Kind == TerminalFailed
}

// Orchestrator drives one doctor request through classification, retrieval
// or the gated diagnostic path, and always ends in exactly one terminal
// result. Steps run strictly in sequence; the first failure short-circuits
// everything downstream.
type Orchestrator struct {
	classifier *IntentClassifier
	retrieval  *InformationRetrievalStep
	gateway    gateway.Gateway
	clarifier  *ClarificationLoop
	diagnosis  *DiagnosisStep
	policy     *policy.Policy
	metrics    *metrics.Recorder
	history    *history.Store // nil disables consultation recording
	logger     *logx.Logger
}

// OrchestratorConfig collects the orchestrator's collaborators. Metrics and
// History are optional.
type OrchestratorConfig struct {
	Classifier *IntentClassifier
	Retrieval  *InformationRetrievalStep
	Gateway    gateway.Gateway
	Clarifier  *ClarificationLoop
	Diagnosis  *DiagnosisStep
	Policy     *policy.Policy
	Metrics    *metrics.Recorder
	History    *history.Store
}

// NewOrchestrator wires the workflow engine.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Classifier == nil || cfg.Retrieval == nil || cfg.Gateway == nil ||
		cfg.Clarifier == nil || cfg.Diagnosis == nil || cfg.Policy == nil {
		return nil, fmt.Errorf("orchestrator requires classifier, retrieval, gateway, clarifier, diagnosis and policy")
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		retrieval:  cfg.Retrieval,
		gateway:    cfg.Gateway,
		clarifier:  cfg.Clarifier,
		diagnosis:  cfg.Diagnosis,
		policy:     cfg.Policy,
		metrics:    cfg.Metrics,
		history:    cfg.History,
		logger:     logx.NewLogger("orchestrator"),
	}, nil
}

// Clarifications exposes suspended clarification questions from runs in
// flight. The caller must service this channel while a diagnostic run is
// active or the run blocks until its context is cancelled.
func (o *Orchestrator) Clarifications() <-chan *ClarificationRequest {
	return o.clarifier.Requests()
}

// Run processes one doctor request to its terminal result. Safe for
// sequential reuse; each call builds fresh per-request state.
func (o *Orchestrator) Run(ctx context.Context, query, patientID string) TerminalResult {
	start := time.Now()

	state, err := NewWorkflowState(query, patientID)
	if err != nil {
		result := TerminalResult{
			Kind:        TerminalFailed,
			FailureKind: FailureInvalidInput,
			Message:     err.Error(),
		}
		o.observe(result, start)
		return result
	}

	o.logger.Info("Request %s started for patient %s", state.ID, patientID)
	current := StateWaiting
	current = o.transition(state, current, StateClassifying)

	classifyStart := time.Now()
	intent := o.classifier.Classify(ctx, state)
	o.observeCollaborator("intent_oracle", true, classifyStart) // classifier never fails

	switch intent {
	case IntentInformationRetrieval:
		current = o.transition(state, current, StateRetrieving)
		fetchStart := time.Now()
		o.retrieval.Retrieve(ctx, state)
		o.observeCollaborator("gateway", !state.Failed(), fetchStart)
	case IntentDiagnosis:
		current = o.transition(state, current, StateFetching)
		fetchStart := time.Now()
		o.fetchForDiagnosis(ctx, state)
		o.observeCollaborator("gateway", !state.Failed(), fetchStart)
		profile := o.policy.SelectProfile(state.Query)

		if !state.Failed() {
			current = o.transition(state, current, StateClarifying)
			o.clarifier.Run(ctx, state, profile)
		}
		if !state.Failed() {
			current = o.transition(state, current, StateDiagnosing)
			inferStart := time.Now()
			o.diagnosis.Diagnose(ctx, state, profile)
			o.observeCollaborator("inference", !state.Failed(), inferStart)
		}
	}

	if state.Failed() {
		o.transition(state, current, StateError)
	} else {
		o.transition(state, current, StateDone)
	}

	result := o.finish(state, intent)
	o.observe(result, start)
	o.record(state, result)
	o.logger.Info("Request %s finished: %s", state.ID, result.Kind)
	return result
}

// fetchForDiagnosis loads the patient record ahead of the sufficiency gate.
func (o *Orchestrator) fetchForDiagnosis(ctx context.Context, state *WorkflowState) {
	state.RecordStep("data-fetch")

	record, err := o.gateway.Fetch(ctx, state.PatientID)
	if err != nil {
		if ctx.Err() != nil {
			state.Abandon()
			state.SetFailure(FailureAborted, "The request was cancelled before the record was fetched.")
			return
		}
		kind, message := failureFromGateway(err, state.PatientID)
		o.logger.Warn("Record fetch failed for patient %s: %v", state.PatientID, err)
		state.SetFailure(kind, message)
		return
	}
	state.Record = record
}

// transition advances the state machine, logging and rejecting illegal moves.
// An illegal transition is an orchestration bug; the run fails rather than
// continuing from an inconsistent phase.
func (o *Orchestrator) transition(state *WorkflowState, from, to State) State {
	if !validTransition(from, to) {
		o.logger.Error("Illegal transition %s -> %s for request %s", from, to, state.ID)
		state.SetFailure(FailureInvalidInput, "The request reached an inconsistent state and was stopped.")
		return StateError
	}
	o.logger.DebugState("transition", string(to), string(from))
	return to
}

// finish derives the terminal result from the final state.
func (o *Orchestrator) finish(state *WorkflowState, intent Intent) TerminalResult {
	result := TerminalResult{
		RequestID: state.ID,
		Intent:    intent,
		Steps:     state.Steps(),
		Rounds:    countClarificationRounds(state.Steps()),
	}

	switch {
	case state.Failed():
		result.Kind = TerminalFailed
		result.FailureKind = state.FailureKind
		result.Message = state.ErrorMessage
	case intent == IntentInformationRetrieval:
		result.Kind = TerminalSummary
		result.Summary = state.Summary
	default:
		result.Kind = TerminalReport
		result.Report = state.Report
	}
	return result
}

func (o *Orchestrator) observeCollaborator(name string, ok bool, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveCollaborator(name, ok, time.Since(start))
}

func (o *Orchestrator) observe(result TerminalResult, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveRequest(string(result.Intent), string(result.Kind), time.Since(start))
	if result.Failed() {
		o.metrics.ObserveFailure(string(result.FailureKind))
	}
	if result.Intent == IntentDiagnosis {
		o.metrics.ObserveClarificationRounds(result.Rounds)
	}
}

// record persists the consultation outcome. Best effort; a storage failure
// never alters the terminal result.
func (o *Orchestrator) record(state *WorkflowState, result TerminalResult) {
	if o.history == nil {
		return
	}

	resultText := result.Summary
	if result.Kind == TerminalReport {
		resultText = result.Report
	}
	entry := &history.Entry{
		ID:           state.ID,
		PatientID:    state.PatientID,
		Query:        state.Query,
		Intent:       string(result.Intent),
		TerminalKind: string(result.Kind),
		ErrorKind:    string(result.FailureKind),
		ResultText:   resultText,
		Rounds:       result.Rounds,
		Steps:        result.Steps,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.history.Record(ctx, entry); err != nil {
		o.logger.Warn("Failed to record consultation %s: %v", state.ID, err)
	}
}

func countClarificationRounds(steps []string) int {
	rounds := 0
	for _, step := range steps {
		if strings.HasPrefix(step, "clarification-round-") {
			rounds++
		}
	}
	return rounds
}
