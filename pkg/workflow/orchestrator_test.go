package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medflow/pkg/gateway"
	"medflow/pkg/history"
	"medflow/pkg/inference"
	"medflow/pkg/llm"
	"medflow/pkg/metrics"
	"medflow/pkg/policy"
	"medflow/pkg/utils"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	gateway      *fakeGateway
	adapter      *fakeAdapter
	oracle       *llm.MockClient
}

// newFixture builds an orchestrator with a scripted intent oracle, canned
// gateway and canned inference adapter. History and metrics stay off unless a
// test wires them explicitly.
func newFixture(t *testing.T, intentAnswer string, gw *fakeGateway, adapter *fakeAdapter) *orchestratorFixture {
	t.Helper()

	pol := policy.Default()
	oracle := llm.NewMockClient([]llm.CompletionResponse{{Content: intentAnswer}}, nil)
	tc, err := utils.NewTokenCounter()
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorConfig{
		Classifier: NewIntentClassifier(oracle, 0),
		Retrieval:  NewInformationRetrievalStep(gw, pol),
		Gateway:    gw,
		Clarifier:  NewClarificationLoop(3),
		Diagnosis:  NewDiagnosisStep(adapter, nil, pol, tc),
		Policy:     pol,
	})
	require.NoError(t, err)

	return &orchestratorFixture{orchestrator: orch, gateway: gw, adapter: adapter, oracle: oracle}
}

// serve answers every clarification request with the given answers.
func (f *orchestratorFixture) serve(t *testing.T, answers map[string]string) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case req := <-f.orchestrator.Clarifications():
				req.Resume(answers)
			case <-done:
				return
			}
		}
	}()
}

func TestRunInformationRetrieval(t *testing.T) {
	f := newFixture(t, "information_retrieval", &fakeGateway{record: cardioRecord()}, &fakeAdapter{})

	result := f.orchestrator.Run(context.Background(), "show me the patient's record", "123")

	assert.Equal(t, TerminalSummary, result.Kind)
	assert.Contains(t, result.Summary, "Patient: John Doe")
	assert.Empty(t, result.Report)
	assert.Zero(t, f.adapter.calls, "retrieval never touches the inference model")
	assert.Equal(t, []string{"intent-classifier", "information-retrieval"}, result.Steps)
}

func TestRunDiagnosisWithClarification(t *testing.T) {
	record := diabetesRecord()
	delete(record.Medical, "HbA1c_level")
	adapter := &fakeAdapter{prediction: &inference.Prediction{Answer: "high risk of diabetes"}}
	f := newFixture(t, "diagnosis", &fakeGateway{record: record}, adapter)
	f.serve(t, map[string]string{"HbA1c_level": "8.4"})

	result := f.orchestrator.Run(context.Background(), "assess diabetes risk", "123")

	require.Equal(t, TerminalReport, result.Kind, "unexpected failure: %s", result.Message)
	assert.Contains(t, result.Report, "high risk of diabetes")
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 8.4, adapter.lastInput["HbA1c_level"])
	assert.Contains(t, result.Steps, "clarification-round-1")
	assert.Contains(t, result.Steps, "diagnosis")
}

func TestRunDiagnosisSufficientRecordSkipsClarification(t *testing.T) {
	adapter := &fakeAdapter{prediction: &inference.Prediction{Answer: "low risk"}}
	f := newFixture(t, "diagnosis", &fakeGateway{record: diabetesRecord()}, adapter)

	result := f.orchestrator.Run(context.Background(), "assess diabetes risk", "123")

	require.Equal(t, TerminalReport, result.Kind)
	assert.Zero(t, result.Rounds)
	assert.NotContains(t, result.Steps, "clarification-round-1")
}

func TestRunPatientNotFoundFailsFast(t *testing.T) {
	gw := &fakeGateway{err: &gateway.Error{Kind: gateway.KindNotFound, Message: "no record"}}
	adapter := &fakeAdapter{prediction: &inference.Prediction{Answer: "never"}}
	f := newFixture(t, "diagnosis", gw, adapter)

	result := f.orchestrator.Run(context.Background(), "assess diabetes risk", "999")

	require.Equal(t, TerminalFailed, result.Kind)
	assert.Equal(t, FailureNotFound, result.FailureKind)
	assert.Contains(t, result.Message, "999")
	assert.Zero(t, f.adapter.calls)
	assert.NotContains(t, result.Steps, "clarification-round-1", "no clarification after a fetch failure")
	assert.NotContains(t, result.Steps, "diagnosis")
}

func TestRunClarificationBoundExhausted(t *testing.T) {
	record := diabetesRecord()
	delete(record.Medical, "HbA1c_level")
	adapter := &fakeAdapter{prediction: &inference.Prediction{Answer: "never"}}
	f := newFixture(t, "diagnosis", &fakeGateway{record: record}, adapter)
	f.serve(t, map[string]string{}) // doctor never supplies the field

	result := f.orchestrator.Run(context.Background(), "assess diabetes risk", "123")

	require.Equal(t, TerminalFailed, result.Kind)
	assert.Equal(t, FailureInsufficientData, result.FailureKind)
	assert.Equal(t, 3, result.Rounds)
	assert.Zero(t, adapter.calls)
	assert.Contains(t, result.Steps, "clarification-round-3")
	assert.NotContains(t, result.Steps, "clarification-round-4")
}

func TestRunOracleFailureRoutesToRetrieval(t *testing.T) {
	gw := &fakeGateway{record: cardioRecord()}
	adapter := &fakeAdapter{}
	pol := policy.Default()
	oracle := llm.NewMockClient(nil, []error{assert.AnError})
	tc, err := utils.NewTokenCounter()
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorConfig{
		Classifier: NewIntentClassifier(oracle, 0),
		Retrieval:  NewInformationRetrievalStep(gw, pol),
		Gateway:    gw,
		Clarifier:  NewClarificationLoop(3),
		Diagnosis:  NewDiagnosisStep(adapter, nil, pol, tc),
		Policy:     pol,
	})
	require.NoError(t, err)

	result := orch.Run(context.Background(), "diagnose this patient", "123")

	assert.Equal(t, TerminalSummary, result.Kind, "classifier failure degrades to retrieval, never to an error")
	assert.Contains(t, result.Steps, "intent-fallback")
}

func TestRunEmptyQueryRejected(t *testing.T) {
	f := newFixture(t, "diagnosis", &fakeGateway{record: diabetesRecord()}, &fakeAdapter{})

	result := f.orchestrator.Run(context.Background(), "", "123")

	require.Equal(t, TerminalFailed, result.Kind)
	assert.Equal(t, FailureInvalidInput, result.FailureKind)
}

func TestRunCancellationDuringClarification(t *testing.T) {
	record := diabetesRecord()
	delete(record.Medical, "HbA1c_level")
	f := newFixture(t, "diagnosis", &fakeGateway{record: record}, &fakeAdapter{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.orchestrator.Clarifications() // leave the doctor's question unanswered
		cancel()
	}()

	resultCh := make(chan TerminalResult, 1)
	go func() {
		resultCh <- f.orchestrator.Run(ctx, "assess diabetes risk", "123")
	}()

	select {
	case result := <-resultCh:
		require.Equal(t, TerminalFailed, result.Kind)
		assert.Equal(t, FailureAborted, result.FailureKind)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunRecordsConsultationHistory(t *testing.T) {
	store, err := history.NewStore(filepath.Join(t.TempDir(), "consultations.db"))
	require.NoError(t, err)
	defer store.Close()

	gw := &fakeGateway{record: cardioRecord()}
	pol := policy.Default()
	oracle := llm.NewMockClient([]llm.CompletionResponse{{Content: "information_retrieval"}}, nil)
	tc, err := utils.NewTokenCounter()
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorConfig{
		Classifier: NewIntentClassifier(oracle, 0),
		Retrieval:  NewInformationRetrievalStep(gw, pol),
		Gateway:    gw,
		Clarifier:  NewClarificationLoop(3),
		Diagnosis:  NewDiagnosisStep(&fakeAdapter{}, nil, pol, tc),
		Policy:     pol,
		Metrics:    metrics.NewRecorder(prometheus.NewRegistry()),
		History:    store,
	})
	require.NoError(t, err)

	result := orch.Run(context.Background(), "show patient record", "123")
	require.Equal(t, TerminalSummary, result.Kind)

	entries, err := store.RecentByPatient(context.Background(), "123", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.RequestID, entries[0].ID)
	assert.Equal(t, "summary", entries[0].TerminalKind)
	assert.Equal(t, result.Steps, entries[0].Steps)
}

func TestRunSequentialReuse(t *testing.T) {
	f := newFixture(t, "information_retrieval", &fakeGateway{record: cardioRecord()}, &fakeAdapter{})

	first := f.orchestrator.Run(context.Background(), "show record", "123")
	require.Equal(t, TerminalSummary, first.Kind)

	// The scripted oracle is exhausted, so the second run falls back.
	second := f.orchestrator.Run(context.Background(), "show record", "123")
	require.Equal(t, TerminalSummary, second.Kind)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}
