package workflow

import (
	"context"
	"strings"
	"time"

	"medflow/pkg/llm"
	"medflow/pkg/logx"
)

const intentSystemPrompt = `You are an expert at classifying clinician intent. Based on the doctor's query, classify the intent as one of the following two options:
1. information_retrieval: requests to get, fetch, or view patient data, summaries, or history.
2. diagnosis: requests related to diagnosing, predicting, analyzing risk, or asking for a diagnosis.

You must respond with ONLY the name of the intent and nothing else. For example: diagnosis`

// DefaultClassifyTimeout bounds one oracle call.
const DefaultClassifyTimeout = 15 * time.Second

// IntentClassifier maps a free-text query to an intent via a language model
// oracle. It never fails: when the oracle is unreachable or undecided, the
// query is routed to information retrieval, the least destructive path.
type IntentClassifier struct {
	oracle  llm.Client
	timeout time.Duration
	logger  *logx.Logger
}

// NewIntentClassifier creates a classifier. A zero timeout selects
// DefaultClassifyTimeout.
func NewIntentClassifier(oracle llm.Client, timeout time.Duration) *IntentClassifier {
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	return &IntentClassifier{
		oracle:  oracle,
		timeout: timeout,
		logger:  logx.NewLogger("intent"),
	}
}

// Classify determines the intent for the state's query and stores it.
// The fallback is recorded in the step history so an ambiguous or failed
// oracle call stays observable.
func (c *IntentClassifier) Classify(ctx context.Context, state *WorkflowState) Intent {
	state.RecordStep("intent-classifier")

	intent := IntentInformationRetrieval // safer, non-diagnostic default
	fallback := true

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(intentSystemPrompt),
		llm.NewUserMessage(state.Query),
	})
	req.MaxTokens = 16
	req.Temperature = 0

	resp, err := c.oracle.Complete(callCtx, req)
	if err != nil {
		c.logger.Warn("Intent oracle failed, defaulting to %s: %v", intent, err)
	} else {
		switch Intent(strings.ToLower(strings.TrimSpace(resp.Content))) {
		case IntentInformationRetrieval:
			fallback = false
		case IntentDiagnosis:
			intent = IntentDiagnosis
			fallback = false
		default:
			c.logger.Warn("Intent oracle returned unrecognized answer %q, defaulting to %s", resp.Content, intent)
		}
	}

	if fallback {
		state.RecordStep("intent-fallback")
	}

	// SetIntent only errors when called twice; the classifier runs once per
	// state by construction.
	_ = state.SetIntent(intent)
	c.logger.Debug("Classified intent for request %s: %s", state.ID, intent)
	return intent
}
