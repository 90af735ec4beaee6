// medflow is the interactive clinical workflow engine. A doctor supplies a
// patient ID and a free-text query; the engine answers with either a patient
// data summary or a diagnostic report, asking follow-up questions when the
// record is missing required fields.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medflow/pkg/config"
	"medflow/pkg/gateway"
	"medflow/pkg/history"
	"medflow/pkg/inference"
	"medflow/pkg/llm/providers"
	"medflow/pkg/logx"
	"medflow/pkg/metrics"
	"medflow/pkg/policy"
	"medflow/pkg/utils"
	"medflow/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}
	// Optional; API keys may arrive via the environment directly.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "medflow: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := logx.NewLogger("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pol, err := loadPolicy(cfg.PolicyPath)
	if err != nil {
		return err
	}

	oracle, err := providers.New(cfg.OracleEndpoint())
	if err != nil {
		return fmt.Errorf("failed to create oracle client: %w", err)
	}

	adapter, err := inference.NewMCPAdapter(ctx, inference.MCPConfig{
		Command:  cfg.Inference.Command,
		Args:     cfg.Inference.Args,
		ToolName: cfg.Inference.ToolName,
		Timeout:  cfg.InferenceTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to start inference service: %w", err)
	}
	defer adapter.Close()

	store, err := history.NewStore(cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	tokens, err := utils.NewTokenCounter()
	if err != nil {
		logger.Warn("Token counter unavailable, using character estimates: %v", err)
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	gw := gateway.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.GatewayTimeout())

	orch, err := workflow.NewOrchestrator(workflow.OrchestratorConfig{
		Classifier: workflow.NewIntentClassifier(oracle, cfg.ClassifyTimeout()),
		Retrieval:  workflow.NewInformationRetrievalStep(gw, pol),
		Gateway:    gw,
		Clarifier:  workflow.NewClarificationLoop(cfg.MaxRounds),
		Diagnosis:  workflow.NewDiagnosisStep(adapter, oracle, pol, tokens),
		Policy:     pol,
		Metrics:    recorder,
		History:    store,
	})
	if err != nil {
		return err
	}

	return console(ctx, orch, store)
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	return policy.Load(path)
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics listening on %s", addr)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed: %v", err)
	}
}

// console runs the interactive loop: read a patient ID and query, print the
// terminal result, answer clarification questions inline.
func console(ctx context.Context, orch *workflow.Orchestrator, store *history.Store) error {
	reader := bufio.NewReader(os.Stdin)
	go answerClarifications(ctx, orch, reader)

	fmt.Println("medflow ready. Commands: <patient-id> <query>, history <patient-id>, quit")
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		default:
		}

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil // EOF ends the session
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if patientID, ok := strings.CutPrefix(line, "history "); ok {
			printHistory(ctx, store, strings.TrimSpace(patientID))
			continue
		}

		patientID, query, found := strings.Cut(line, " ")
		if !found {
			fmt.Println("usage: <patient-id> <query>")
			continue
		}

		result := orch.Run(ctx, query, patientID)
		printResult(result)
	}
}

// answerClarifications services suspended workflow questions from stdin.
// The console loop and this goroutine never read concurrently: the loop
// blocks inside orch.Run while a clarification is pending.
func answerClarifications(ctx context.Context, orch *workflow.Orchestrator, reader *bufio.Reader) {
	for {
		select {
		case req := <-orch.Clarifications():
			fmt.Printf("\n%s\n", req.Prompt())
			answers := make(map[string]string)
			for _, field := range req.Missing {
				fmt.Printf("%s: ", field)
				value, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				answers[field] = strings.TrimSpace(value)
			}
			req.Resume(answers)
		case <-ctx.Done():
			return
		}
	}
}

func printResult(result workflow.TerminalResult) {
	switch result.Kind {
	case workflow.TerminalSummary:
		fmt.Println("\n" + result.Summary)
	case workflow.TerminalReport:
		fmt.Println("\n" + result.Report)
	case workflow.TerminalFailed:
		fmt.Printf("\nRequest failed (%s): %s\n", result.FailureKind, result.Message)
	}
}

func printHistory(ctx context.Context, store *history.Store, patientID string) {
	if patientID == "" {
		fmt.Println("usage: history <patient-id>")
		return
	}

	entries, err := store.RecentByPatient(ctx, patientID, 10)
	if err != nil {
		fmt.Printf("failed to load history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Printf("no consultations recorded for patient %s\n", patientID)
		return
	}
	for _, e := range entries {
		fmt.Printf("[%s] %s (%s) rounds=%d steps=%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Query, e.TerminalKind, e.Rounds, history.SummarizeSteps(e.Steps))
	}
}
