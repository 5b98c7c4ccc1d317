package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/config"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/secrets"
)

func TestResolveKeyOrder(t *testing.T) {
	keys, err := secrets.Open(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "from-config", resolveKey(keys, "resend", "AQUAFLOW_TEST_RESEND", "from-config"))

	require.NoError(t, keys.Set("resend", "from-store"))
	require.Equal(t, "from-store", resolveKey(keys, "resend", "AQUAFLOW_TEST_RESEND", "from-config"))

	t.Setenv("AQUAFLOW_TEST_RESEND", "from-env")
	require.Equal(t, "from-env", resolveKey(keys, "resend", "AQUAFLOW_TEST_RESEND", "from-config"))

	require.Equal(t, "cfg", resolveKey(nil, "resend", "", " cfg "))
}

func TestLLMProviderFallsBackWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := config.Config{LLM: config.LLMConfig{Provider: "openai"}}
	p, err := llmProvider(c, nil, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &llm.HeuristicProvider{}, p)

	c.LLM.APIKey = "sk-test"
	p, err = llmProvider(c, nil, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &llm.OpenAIProvider{}, p)

	c.LLM.Provider = "mystery"
	_, err = llmProvider(c, nil, zap.NewNop())
	require.Error(t, err)
}

func TestKnownProvider(t *testing.T) {
	t.Parallel()
	p, err := knownProvider(" OpenAI ")
	require.NoError(t, err)
	require.Equal(t, "openai", p)

	_, err = knownProvider("stripe")
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()
	want := []string{"serve", "migrate", "followups", "triage", "keys", "board", "seed"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}
}
