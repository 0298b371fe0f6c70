package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const testGraph = `{
  "id": "g1",
  "nodes": [
    {"id": "start", "kind": "trigger", "connector": "slack"},
    {"id": "notify", "kind": "action", "connector": "slack", "action": "send_message"}
  ],
  "edges": [{"from": "start", "to": "notify"}]
}`

const testNodes = `[
  {"id": "central-1", "environment": "CENTRAL", "capabilities": {}},
  {"id": "edge-1", "environment": "EDGE", "capabilities": {}}
]`

func TestCompileCommandPrintsArtifact(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", testGraph)
	nodesPath := writeFile(t, dir, "nodes.json", testNodes)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "compile", "-graph", graphPath, "-nodes", nodesPath}, &stdout, &stderr)

	require.Zero(t, code, stderr.String())

	var artifact map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &artifact))
	assert.Len(t, artifact["irChecksum"], 64)
	assert.NotEmpty(t, artifact["irSignature"])
}

func TestCompileCommandStoreAndVerify(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", testGraph)
	nodesPath := writeFile(t, dir, "nodes.json", testNodes)
	dbPath := filepath.Join(dir, "artifacts.db")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "compile", "-graph", graphPath, "-nodes", nodesPath, "-db", dbPath}, &stdout, &stderr)
	require.Zero(t, code, stderr.String())

	// Extract the checksum from "stored artifact <checksum> for graph g1".
	fields := bytes.Fields(stdout.Bytes())
	require.GreaterOrEqual(t, len(fields), 3)
	checksum := string(fields[2])

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"flowforge", "verify", "-db", dbPath, "-checksum", checksum}, &stdout, &stderr)
	require.Zero(t, code, stderr.String())
	assert.Contains(t, stdout.String(), "verified")
}

func TestCompileCommandRejectsCyclicGraph(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", `{
	  "id": "g2",
	  "nodes": [{"id": "a", "kind": "action"}, {"id": "b", "kind": "action"}],
	  "edges": [{"from": "a", "to": "b"}, {"from": "b", "to": "a"}]
	}`)
	nodesPath := writeFile(t, dir, "nodes.json", testNodes)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "compile", "-graph", graphPath, "-nodes", nodesPath}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "cycle")
}

func TestCheckCommandReportsMissingConnector(t *testing.T) {
	dir := t.TempDir()
	rulePath := writeFile(t, dir, "rule.json", `{
	  "id": "r1",
	  "trigger": {"source": "pagerduty", "type": "event"},
	  "actions": [{"connector": "pagerduty", "function": "page"}]
	}`)
	catalogPath := writeFile(t, dir, "catalog.json", `{
	  "catalogVersion": "test",
	  "connectors": [{"id": "slack", "functions": [{"id": "send_message"}]}]
	}`)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "check", "-rule", rulePath, "-catalog", catalogPath}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "not connected")
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestCompileCommandAppendsAuditChain(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", testGraph)
	nodesPath := writeFile(t, dir, "nodes.json", testNodes)
	auditPath := filepath.Join(dir, "audit.db")

	for i := 0; i < 2; i++ {
		var stdout, stderr bytes.Buffer
		code := Run([]string{"flowforge", "compile", "-graph", graphPath, "-nodes", nodesPath, "-audit", auditPath}, &stdout, &stderr)
		require.Zero(t, code, stderr.String())
	}

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "audit", "-db", auditPath}, &stdout, &stderr)
	require.Zero(t, code, stderr.String())
	assert.Contains(t, stdout.String(), "verified (2 records)")
}

func TestAuditCommandRequiresDB(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "audit"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}

const testCatalog = `{
  "catalogVersion": "test",
  "connectors": [{"id": "slack", "status": "active", "functions": [{"id": "send_message", "status": "active"}]}]
}`

func generatorStub(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateCommandRunsPipelineFromConfig(t *testing.T) {
	dir := t.TempDir()
	promptPath := writeFile(t, dir, "prompt.txt", "notify me on new messages")
	catalogPath := writeFile(t, dir, "catalog.json", testCatalog)
	profilePath := writeFile(t, dir, "profile.yaml", "name: test\nmax_rules: 5\ngenerator_rps: 100\ngenerator_burst: 10\n")

	srv := generatorStub(t, `{"workflow_rules":{"rules":[{"name":"notify","trigger":{"source":"slack"},"actions":[{"type":"slack.send_message","payload":{"channel":"#x"}}]}],"confidence":0.9}}`)
	t.Setenv("GENERATOR_URL", srv.URL)
	t.Setenv("VALIDATION_PROFILE", profilePath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "validate", "-prompt", promptPath, "-catalog", catalogPath, "-run-id", "run-cli"}, &stdout, &stderr)

	require.Zero(t, code, stderr.String())
	var vr map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &vr))
	assert.Contains(t, vr, "schemaValidation")
	assert.Contains(t, vr, "catalogValidation")
}

func TestValidateCommandEnforcesProfileRuleLimit(t *testing.T) {
	dir := t.TempDir()
	promptPath := writeFile(t, dir, "prompt.txt", "do everything")
	catalogPath := writeFile(t, dir, "catalog.json", testCatalog)
	profilePath := writeFile(t, dir, "profile.yaml", "name: strict\nmax_rules: 1\ngenerator_rps: 100\ngenerator_burst: 10\n")

	srv := generatorStub(t, `{"workflow_rules":{"rules":[
	  {"name":"a","trigger":{"source":"slack"},"actions":[{"type":"slack.send_message","payload":{}}]},
	  {"name":"b","trigger":{"source":"slack"},"actions":[{"type":"slack.send_message","payload":{}}]}
	],"confidence":0.9}}`)
	t.Setenv("GENERATOR_URL", srv.URL)
	t.Setenv("VALIDATION_PROFILE", profilePath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "validate", "-prompt", promptPath, "-catalog", catalogPath}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "exceeds limit 1")
}

func TestValidateCommandRequiresFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"flowforge", "validate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}
