package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"medflow/pkg/gateway"
	"medflow/pkg/logx"
	"medflow/pkg/policy"
)

// DefaultMaxClarificationRounds bounds the clarification loop. After this
// many rounds the workflow fails rather than asking again.
const DefaultMaxClarificationRounds = 3

// ClarificationRequest is a suspended question to the doctor. The workflow
// goroutine blocks until Resume delivers the answers or the request context
// is cancelled.
type ClarificationRequest struct {
	RequestID string
	PatientID string
	Round     int
	Missing   []string // Profile order, never empty

	answerCh chan map[string]string
	once     sync.Once
}

func newClarificationRequest(patientID string, round int, missing []string) *ClarificationRequest {
	return &ClarificationRequest{
		RequestID: uuid.New().String(),
		PatientID: patientID,
		Round:     round,
		Missing:   missing,
		answerCh:  make(chan map[string]string, 1),
	}
}

// Resume delivers the doctor's answers and wakes the suspended workflow.
// Only the first call has any effect; later calls are ignored.
func (r *ClarificationRequest) Resume(answers map[string]string) {
	r.once.Do(func() {
		r.answerCh <- answers
		close(r.answerCh)
	})
}

// Prompt renders the question shown to the doctor.
func (r *ClarificationRequest) Prompt() string {
	return fmt.Sprintf("Some information required for the diagnosis is missing for patient %s. Please provide: %v", r.PatientID, r.Missing)
}

// ClarificationLoop runs the gate-ask-merge cycle until the record is
// sufficient or the round bound is exhausted. Requests surface on the
// Requests channel; the caller (UI, test harness) answers via Resume.
type ClarificationLoop struct {
	maxRounds int
	requests  chan *ClarificationRequest
	logger    *logx.Logger
}

// NewClarificationLoop creates a loop with the given round bound. A bound
// below 1 falls back to the default.
func NewClarificationLoop(maxRounds int) *ClarificationLoop {
	if maxRounds < 1 {
		maxRounds = DefaultMaxClarificationRounds
	}
	return &ClarificationLoop{
		maxRounds: maxRounds,
		requests:  make(chan *ClarificationRequest),
		logger:    logx.NewLogger("clarify"),
	}
}

// Requests exposes suspended clarification questions to the caller.
func (l *ClarificationLoop) Requests() <-chan *ClarificationRequest {
	return l.requests
}

// MaxRounds returns the configured round bound.
func (l *ClarificationLoop) MaxRounds() int {
	return l.maxRounds
}

// Run evaluates sufficiency and, while fields are missing, suspends the
// workflow one round at a time. Answers merge into the state before the next
// evaluation, so earlier answers are never re-requested. Returns once the
// record is sufficient, the bound is exhausted (failure recorded on the
// state) or the context is cancelled (state abandoned).
func (l *ClarificationLoop) Run(ctx context.Context, state *WorkflowState, profile policy.Profile) {
	state.RecordStep("sufficiency-gate")
	missing := EvaluateSufficiency(state.Record, state.ClarificationAnswers, profile)
	state.MissingFields = missing
	if len(missing) == 0 {
		return
	}

	for round := 1; round <= l.maxRounds; round++ {
		state.RecordStep(fmt.Sprintf("clarification-round-%d", round))
		l.logger.Info("Round %d for patient %s, missing %v", round, state.PatientID, missing)

		req := newClarificationRequest(state.PatientID, round, missing)
		select {
		case l.requests <- req:
		case <-ctx.Done():
			state.Abandon()
			state.SetFailure(FailureAborted, "The request was cancelled before clarification completed.")
			return
		}

		select {
		case answers := <-req.answerCh:
			state.MergeAnswers(answers)
		case <-ctx.Done():
			state.Abandon()
			state.SetFailure(FailureAborted, "The request was cancelled while waiting for clarification.")
			return
		}

		missing = EvaluateSufficiency(state.Record, state.ClarificationAnswers, profile)
		state.MissingFields = missing
		if len(missing) == 0 {
			return
		}
	}

	state.SetFailure(FailureInsufficientData,
		fmt.Sprintf("Required information is still missing after %d clarification rounds: %v. The diagnosis cannot proceed.", l.maxRounds, missing))
}

// mergedRecordValues folds the record and clarification answers into one
// normalized map keyed by canonical field name. Answers win over record
// values because they are newer.
func mergedRecordValues(record *gateway.NormalizedRecord, answers map[string]string) map[string]any {
	values := make(map[string]any)
	if record != nil {
		for k, v := range record.Medical {
			if normalized, usable := NormalizeValue(v); usable {
				values[k] = normalized
			}
		}
		if _, ok := values["age"]; !ok && record.Personal.Age > 0 {
			values["age"] = float64(record.Personal.Age)
		}
		if _, ok := values["gender"]; !ok && record.Personal.Gender != "" {
			values["gender"] = record.Personal.Gender
		}
	}
	for k, v := range answers {
		if normalized, usable := NormalizeValue(v); usable {
			values[k] = normalized
		}
	}
	return values
}
