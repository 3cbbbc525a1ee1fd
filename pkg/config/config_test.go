package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kadirpekel/docflow/pkg/config"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigFileAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
docs: sop_docs
`)

	cfg, loader, err := config.LoadConfigFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	require.Equal(t, 50, cfg.MaxTasks)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, "auto", cfg.Resolver.VectorSearchQueryRewriteMode)
	require.Equal(t, 0.5, cfg.Resolver.VectorSearchThreshold)
	require.Equal(t, 2, cfg.Orchestrator.MaxParallelJobs)
	require.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoadConfigFileExpandsEnvVars(t *testing.T) {
	t.Setenv("DOCFLOW_LLM_MODEL", "gpt-4o-mini")

	path := writeConfigFile(t, `
docs: sop_docs
llm:
  model: ${DOCFLOW_LLM_MODEL}
`)

	cfg, loader, err := config.LoadConfigFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestValidateRejectsBadRewriteMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Resolver.VectorSearchQueryRewriteMode = "sometimes"

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownVectorStoreProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.VectorStore.Provider = "pinecone"

	err := cfg.Validate()
	require.Error(t, err)
}
