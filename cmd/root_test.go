package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "ingest", "periods", "plans", "advisors", "report", "notify", "schedule", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "advisor-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "period", "start", "end", "format"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest should have --%s flag", name)
	}
}

func TestPeriodsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range periodsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "delete"} {
		assert.True(t, names[name], "periods should have subcommand %q", name)
	}
}

func TestPlansCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range plansCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "add", "import", "deactivate"} {
		assert.True(t, names[name], "plans should have subcommand %q", name)
	}
}

func TestPlansAddCommand_Defaults(t *testing.T) {
	flag := plansAddCmd.Flags().Lookup("labor-rate")
	require.NotNil(t, flag)
	assert.Equal(t, "0.075", flag.DefValue)

	flag = plansAddCmd.Flags().Lookup("bonus-amount")
	require.NotNil(t, flag)
	assert.Equal(t, "500", flag.DefValue)
}

func TestReportCommand_Flags(t *testing.T) {
	require.NotNil(t, reportCmd.Flags().Lookup("advisor"))
	require.NotNil(t, reportCmd.PersistentFlags().Lookup("format"))
	require.NotNil(t, reportBatchCmd.Flags().Lookup("period"))
}

func TestNotifyCommand_Flags(t *testing.T) {
	for _, name := range []string{"period", "advisor", "goals"} {
		assert.NotNil(t, notifyCmd.Flags().Lookup(name), "notify should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestPeriodsDelete_RequiresConfirmation(t *testing.T) {
	require.NoError(t, periodsDeleteCmd.Flags().Set("yes", "false"))
	err := periodsDeleteCmd.RunE(periodsDeleteCmd, []string{"2024-03"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without --yes")
}
