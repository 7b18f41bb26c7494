package main

import (
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jerrybase-cli/internal/config"
	"github.com/sells-group/jerrybase-cli/internal/enrich"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"listings", "enrich", "export", "runs", "config", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "jerrybase-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "failures"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}

func TestEnrichCommand_Flags(t *testing.T) {
	for flag, def := range map[string]string{
		"concurrency":       strconv.Itoa(enrich.DefaultMaxConcurrent),
		"delay":             "200ms",
		"timeout":           "30s",
		"failure-threshold": "25",
		"force":             "false",
	} {
		f := enrichCmd.Flags().Lookup(flag)
		require.NotNil(t, f, "enrich command should have --%s flag", flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
	require.NotNil(t, enrichCmd.Flags().Lookup("ids"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestListingsCommand_Flags(t *testing.T) {
	require.NotNil(t, listingsCmd.Flags().Lookup("buckets"))
	flag := listingsCmd.Flags().Lookup("limit-buckets")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func setEnrichConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Scrape: config.ScrapeConfig{
		MaxConcurrent:    10,
		DelayMS:          200,
		TimeoutSecs:      30,
		FailureThreshold: 25,
		CheckpointEvery:  50,
	}}
}

func newEnrichFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "enrich"}
	f := cmd.Flags()
	f.Int("concurrency", 10, "")
	f.Duration("delay", 200*time.Millisecond, "")
	f.Duration("timeout", 30*time.Second, "")
	f.Int("failure-threshold", 25, "")
	f.Bool("force", false, "")
	f.StringSlice("ids", nil, "")
	return cmd
}

func TestEnrichOptions_FlagsOverrideConfig(t *testing.T) {
	setEnrichConfig(t)

	cmd := newEnrichFlagsCmd()
	f := cmd.Flags()
	require.NoError(t, f.Parse([]string{"--concurrency=3", "--delay=1s", "--force", "--ids=19750813_42,19751231_311"}))

	require.NoError(t, applyEnrichFlags(cmd))
	opts, err := enrichOptions(cmd)
	require.NoError(t, err)

	assert.Equal(t, 3, opts.MaxConcurrent)
	assert.Equal(t, time.Second, opts.Delay)
	assert.Equal(t, 30*time.Second, opts.RequestTimeout)
	assert.Equal(t, 25, opts.FailureThreshold)
	assert.Equal(t, 50, opts.CheckpointEvery)
	assert.True(t, opts.Force)
	assert.Equal(t, []string{"19750813_42", "19751231_311"}, opts.OnlyIDs)

	require.NoError(t, f.Parse([]string{"--concurrency=0"}))
	require.NoError(t, applyEnrichFlags(cmd))
	_, err = enrichOptions(cmd)
	assert.Error(t, err)
}

func TestApplyEnrichFlags_DurationResolution(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		delay   time.Duration
		timeout time.Duration
	}{
		{name: "whole units", args: []string{"--delay=250ms", "--timeout=2m"}, delay: 250 * time.Millisecond, timeout: 2 * time.Minute},
		{name: "zero delay", args: []string{"--delay=0s"}, delay: 0, timeout: 30 * time.Second},
		{name: "sub-second timeout", args: []string{"--timeout=500ms"}, wantErr: "--timeout must be a whole number of seconds, got 500ms"},
		{name: "fractional timeout", args: []string{"--timeout=1.5s"}, wantErr: "--timeout must be a whole number of seconds"},
		{name: "sub-millisecond delay", args: []string{"--delay=500us"}, wantErr: "--delay must be a whole number of milliseconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnrichConfig(t)
			cmd := newEnrichFlagsCmd()
			require.NoError(t, cmd.Flags().Parse(tt.args))

			err := applyEnrichFlags(cmd)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			opts, err := enrichOptions(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.delay, opts.Delay)
			assert.Equal(t, tt.timeout, opts.RequestTimeout)
		})
	}
}
