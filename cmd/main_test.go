package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-rag/internal/config"
	"health-rag/internal/models"
	"health-rag/internal/testutil"
)

const guideText = `Healthy eating guide.

Eat vegetables every day. Leafy greens such as spinach and kale should fill half the plate.
Whole grains like oats and brown rice provide fibre that supports digestion.
Limit sugary drinks and processed snacks.`

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "guide.txt")
	require.NoError(t, os.WriteFile(source, []byte(guideText), 0o644))

	cfg := fmt.Sprintf(`source:
  location: %s
log:
  level: error
rag:
  chunk_size: 80
  chunk_overlap: 10
  top_k: 2
chat_llm:
  key: test
embed_llm:
  key: test
%s`, source, extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "health-rag", cmd.Use)

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, configFilePath, flag.DefValue)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "ask", "ingest"}, names)
}

func TestIngestDryRun(t *testing.T) {
	path, _ := writeConfig(t, "")

	out, err := execute(t, "--config", path, "ingest", "--dry-run")
	require.NoError(t, err)

	var chunks []models.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].ChunkID)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Healthy eating guide."))
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), 80)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))

	_, err := execute(t, "--config", path, "ingest", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.location is required")

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "ingest", "--dry-run")
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, setupLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf))
	assert.NoError(t, setupLogger(config.LogConfig{Level: "info", Format: "console"}, &buf))
	assert.Error(t, setupLogger(config.LogConfig{Level: "loud", Format: "json"}, &buf))
	assert.Error(t, setupLogger(config.LogConfig{Level: "info", Format: "xml"}, &buf))
}

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	path, _ := writeConfig(t, extra)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildApp(t *testing.T) {
	cfg := loadConfig(t, "")
	fake := testutil.NewRoutingFakeLLM("health", "Fill half your plate with greens.")
	a, err := buildApp(context.Background(), cfg, &providers{chat: fake, embedder: testutil.NewHashEmbedder()})
	require.NoError(t, err)
	defer a.close()

	assert.Greater(t, a.index.Size(), 1)

	res, err := a.svc.Answer(context.Background(), models.QueryRequest{Text: "What vegetables should I eat?"})
	require.NoError(t, err)
	assert.Equal(t, "Fill half your plate with greens.", res.Response)
	assert.Contains(t, fake.LastPrompt(), "Reference material:")
}

func TestBuildApp_ContextualizeAndExport(t *testing.T) {
	exportPath := filepath.Join(t.TempDir(), "out", "index.gob.gz")
	cfg := loadConfig(t, "")
	cfg.RAG.Contextualize = true
	cfg.RAG.ExportPath = exportPath

	fake := testutil.NewRoutingFakeLLM("general", "From the healthy eating guide.")
	a, err := buildApp(context.Background(), cfg, &providers{chat: fake, embedder: testutil.NewHashEmbedder()})
	require.NoError(t, err)
	defer a.close()

	var contextCalls int
	for _, p := range fake.Prompts() {
		if strings.Contains(p, "<document>") {
			contextCalls++
		}
	}
	assert.Equal(t, a.index.Size(), contextCalls)

	_, err = os.Stat(exportPath)
	assert.NoError(t, err)
}

func TestBuildApp_MissingSource(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Source.Location = filepath.Join(t.TempDir(), "missing.pdf")

	_, err := buildApp(context.Background(), cfg, &providers{chat: testutil.NewFakeLLM("x"), embedder: testutil.NewHashEmbedder()})
	assert.Error(t, err)
}

func TestBuildApp_EmbedDimensionsChecked(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.EmbedLLM.Dimensions = 32

	_, err := buildApp(context.Background(), cfg, &providers{chat: testutil.NewFakeLLM("x"), embedder: testutil.NewHashEmbedder()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured 32")
}
