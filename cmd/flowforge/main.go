package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/flowforge-io/core/pkg/audit"
	"github.com/flowforge-io/core/pkg/catalog"
	"github.com/flowforge-io/core/pkg/config"
	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/crypto"
	"github.com/flowforge-io/core/pkg/dag"
	"github.com/flowforge-io/core/pkg/escalation"
	"github.com/flowforge-io/core/pkg/feedback"
	"github.com/flowforge-io/core/pkg/llm"
	"github.com/flowforge-io/core/pkg/observability"
	"github.com/flowforge-io/core/pkg/orchestrator"
	"github.com/flowforge-io/core/pkg/registry"
	"github.com/flowforge-io/core/pkg/rules"
	"github.com/flowforge-io/core/pkg/sandbox"
	"github.com/flowforge-io/core/pkg/store"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "compile":
		return runCompileCmd(args[2:], stdout, stderr)
	case "check":
		return runCheckCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: flowforge <command> [flags]

Commands:
  compile   compile a workflow graph into a signed IR artifact
  check     statically validate a rule against a catalog
  verify    verify a stored artifact's checksum and signature
  audit     verify a persisted audit chain end to end
  validate  generate and validate a rule set for a natural-language request`)
}

// runCompileCmd compiles a graph JSON file against a node list and
// prints (or stores) the signed artifact.
func runCompileCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	graphPath := fs.String("graph", "", "path to graph JSON")
	nodesPath := fs.String("nodes", "", "path to execution-node list JSON")
	keyPath := fs.String("key", "", "path to hex-encoded Ed25519 seed (ephemeral key if empty)")
	keyID := fs.String("key-id", "local-dev", "signing key identifier")
	dbPath := fs.String("db", "", "artifact database path (print-only if empty)")
	auditPath := fs.String("audit", "", "audit chain database path (no audit record if empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *graphPath == "" || *nodesPath == "" {
		fmt.Fprintln(stderr, "compile: -graph and -nodes are required")
		return 2
	}

	var graph contracts.Graph
	if err := readJSON(*graphPath, &graph); err != nil {
		fmt.Fprintf(stderr, "compile: %v\n", err)
		return 1
	}
	var nodes []contracts.ExecutionNode
	if err := readJSON(*nodesPath, &nodes); err != nil {
		fmt.Fprintf(stderr, "compile: %v\n", err)
		return 1
	}

	signer, err := loadSigner(*keyPath, *keyID)
	if err != nil {
		fmt.Fprintf(stderr, "compile: %v\n", err)
		return 1
	}

	start := time.Now()
	artifact, err := dag.NewCompiler(signer).Compile(&graph, nodes)
	if err != nil {
		var cerr *dag.Error
		if errors.As(err, &cerr) {
			for _, issue := range cerr.Issues {
				fmt.Fprintf(stderr, "[%s] %s: %s\n", issue.Severity, issue.Location, issue.Message)
			}
		}
		fmt.Fprintf(stderr, "compile: %v\n", err)
		return 1
	}

	if *auditPath != "" {
		if err := appendCompileRecord(*auditPath, signer, &graph, artifact, time.Since(start)); err != nil {
			fmt.Fprintf(stderr, "compile: %v\n", err)
			return 1
		}
	}

	if *dbPath != "" {
		s, err := store.OpenArtifactStore(*dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "compile: %v\n", err)
			return 1
		}
		defer s.Close()
		if err := s.Put(context.Background(), graph.ID, artifact); err != nil {
			fmt.Fprintf(stderr, "compile: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "stored artifact %s for graph %s\n", artifact.IRChecksum, graph.ID)
		return 0
	}

	return printJSON(stdout, stderr, artifact)
}

// runCheckCmd statically validates a rule file against a catalog file and
// prints the user-facing feedback.
func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulePath := fs.String("rule", "", "path to rule JSON")
	catalogPath := fs.String("catalog", "", "path to live-context JSON")
	docsPath := fs.String("documents", "", "path to available-documents JSON (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *rulePath == "" || *catalogPath == "" {
		fmt.Fprintln(stderr, "check: -rule and -catalog are required")
		return 2
	}

	var rule contracts.Rule
	if err := readJSON(*rulePath, &rule); err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}
	var lc contracts.LiveContext
	if err := readJSON(*catalogPath, &lc); err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}
	var docs []contracts.Document
	if *docsPath != "" {
		if err := readJSON(*docsPath, &docs); err != nil {
			fmt.Fprintf(stderr, "check: %v\n", err)
			return 1
		}
	}

	reg := registry.NewInMemoryRegistry(lc.CatalogVersion)
	for _, c := range lc.Connectors {
		reg.RegisterConnector(c)
	}
	for _, a := range lc.Agents {
		reg.RegisterAgent(a)
	}

	compiler, err := rules.NewCompiler(reg)
	if err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}
	report := compiler.Compile(&rule, docs, nil)

	if err := printJSON(stdout, stderr, feedback.ForUser(report)); err != 0 {
		return err
	}
	if !report.IsValid {
		return 1
	}
	return 0
}

// runVerifyCmd re-checks a stored artifact: checksum over the IR bytes
// and, when a public key is given, the signature.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "artifact database path")
	checksum := fs.String("checksum", "", "artifact checksum to verify")
	pubKey := fs.String("pub", "", "hex-encoded Ed25519 public key (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dbPath == "" || *checksum == "" {
		fmt.Fprintln(stderr, "verify: -db and -checksum are required")
		return 2
	}

	s, err := store.OpenArtifactStore(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	defer s.Close()

	artifact, err := s.Get(context.Background(), *checksum)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}

	if err := dag.VerifyArtifact(artifact, *pubKey); err != nil {
		fmt.Fprintf(stderr, "verify: FAILED: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "artifact %s verified\n", *checksum)
	return 0
}

// runValidateCmd drives the full generation pipeline: deployment knobs
// come from the environment (config.Load), validation policy from the
// configured profile, and the generator/schema/catalog/sandbox stages run
// through the orchestrator.
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	promptPath := fs.String("prompt", "", "path to the natural-language request")
	catalogPath := fs.String("catalog", "", "path to live-context JSON")
	runID := fs.String("run-id", "", "run id (generated if empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *promptPath == "" || *catalogPath == "" {
		fmt.Fprintln(stderr, "validate: -prompt and -catalog are required")
		return 2
	}

	cfg := config.Load()
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}
	logger := newLogger(stderr, cfg.LogLevel)

	promptRaw, err := os.ReadFile(*promptPath)
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}
	var lc contracts.LiveContext
	if err := readJSON(*catalogPath, &lc); err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}

	ctx := context.Background()
	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "flowforge-core",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		Enabled:      cfg.OTLPEndpoint != "",
		Insecure:     true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	generator := llm.NewHTTPGenerator(cfg.GeneratorURL, profile.GeneratorRPS, profile.GeneratorBurst)
	validator := catalog.NewValidator(catalog.Options{
		UnknownSafeMode: cfg.UnknownSafeMode || profile.SafeModeEnabled(catalog.CodeUnknownConnector),
	})
	o, err := orchestrator.New(generator, validator, sandbox.NewSimulator(time.Now().UnixNano()), escalation.NewLogSink(logger), logger)
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}
	o.WithObservability(obs).WithRuleLimit(profile.MaxRules)

	constraints := llm.BuildConstraints(lc)
	constraints.MaxRules = profile.MaxRules

	vr, err := o.ParseAndValidate(ctx, &llm.GenerateRequest{
		Prompt:      strings.TrimSpace(string(promptRaw)),
		Constraints: constraints,
		RunID:       *runID,
	}, lc, *runID)
	if vr != nil {
		if code := printJSON(stdout, stderr, vr); code != 0 {
			return code
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// appendCompileRecord extends the persisted audit chain with one record
// covering this compilation.
func appendCompileRecord(path string, signer crypto.Signer, graph *contracts.Graph, artifact *contracts.CompiledArtifact, elapsed time.Duration) error {
	s, err := audit.OpenStore(path)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}

	chain := audit.Resume("flowforge-cli", signer, existing)
	record, err := chain.Append(audit.Event{
		WorkflowID: graph.ID,
		EventType:  "WORKFLOW_COMPILED",
		Input:      graph,
		Output:     map[string]string{"irChecksum": artifact.IRChecksum},
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return s.Save(ctx, []audit.Record{record})
}

// runAuditCmd verifies a persisted audit chain end to end.
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "audit chain database path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "audit: -db is required")
		return 2
	}

	s, err := audit.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "audit: %v\n", err)
		return 1
	}
	defer s.Close()

	n, err := s.VerifyStored(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "audit: FAILED after %d records: %v\n", n, err)
		return 1
	}
	fmt.Fprintf(stdout, "audit chain verified (%d records)\n", n)
	return 0
}

// loadSigner resolves the signing key through a keyring, so swapping in a
// multi-key or hardware-backed provider only touches this function.
func loadSigner(keyPath, keyID string) (crypto.Signer, error) {
	ring := crypto.NewKeyRing()
	if keyPath == "" {
		s, err := crypto.NewEd25519Signer(keyID)
		if err != nil {
			return nil, err
		}
		ring.Add(s)
	} else {
		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		ring.Add(crypto.NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed), keyID))
	}
	if err := ring.Rotate(keyID); err != nil {
		return nil, err
	}
	return ring.Active()
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode output: %v\n", err)
		return 1
	}
	return 0
}

