package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"dashcheck/internal/notify"
	"dashcheck/internal/observability"
	"dashcheck/internal/snowflake"
	"dashcheck/internal/ui"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

const testConfig = `
snowflake:
  account: xy12345.eu-west-2
  username: analyst
  warehouse: COMPUTE_WH
tenants:
  - name: acme
    regions: [uk, eu]
    source_databases: [acme_uk, acme_eu]
    tables:
      encounters:
        key_columns: [encounter_id]
    definitions:
      - name: roles
        look_up_database: acme_base_tables
        look_up_table: role_lookup
        look_up_column: role
    statistics:
      - name: referrals
        dashboard_table: overview_weekly
        base_query: SELECT COUNT(*) FROM acme_base_tables.referrals
    lineage:
      encounters: [referrals_weekly]
      referrals_weekly: [overview_weekly]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRootHelp(t *testing.T) {
	code, out, _ := execute(t, "--help")
	assert.Equal(t, exitOK, code)

	assert.Contains(t, out, "dashcheck")
	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"validate", "checks", "config", "init", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	code, _, errOut := execute(t, "deploy")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := execute(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "dashcheck version dev")
}

func TestChecksCommand(t *testing.T) {
	code, out, _ := execute(t, "checks")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "RegionRowCount")
	assert.Contains(t, out, "DashboardComparison")

	_, out, _ = execute(t, "checks", "--stage", "1")
	assert.Contains(t, out, "NullRegions")
	assert.NotContains(t, out, "PrimaryKeyCount")
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t)

	code, out, errOut := execute(t, "config", "validate", "--config", path)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Configuration valid: 1 tenant(s)")
	assert.Contains(t, out, "acme: 2 region(s), 1 mapped table(s), 1 definition(s), 1 dashboard check(s)")
	assert.Contains(t, out, "lineage leaves: overview_weekly\n")
}

func TestConfigValidateConnectNeedsPassword(t *testing.T) {
	keyring.MockInit()
	t.Setenv(snowflake.EnvPassword, "")

	code, out, errOut := execute(t, "config", "validate", "--connect", "--config", writeConfig(t))
	assert.Equal(t, exitError, code)
	assert.Contains(t, out, "Configuration valid: 1 tenant(s)")
	assert.Contains(t, errOut, string(apperrors.ErrCodeConfigMissing))
}

func TestConfigValidateMissingFile(t *testing.T) {
	code, _, errOut := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, string(apperrors.ErrCodeConfigNotFound))
}

func TestChecksByID(t *testing.T) {
	code, out, _ := execute(t, "checks", "2.2", "3.1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "PrimaryKeySet")
	assert.NotContains(t, out, "RegionRowCount")

	code, _, errOut := execute(t, "checks", "9.9")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "unknown check id")
}

func TestNotificationSink(t *testing.T) {
	logger := observability.Discard()

	sink, err := notificationSink(models.Notification{SlackWebhookURL: "https://hooks.slack.test/T000/B000/XXX"}, true, &bytes.Buffer{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.SlackSink{}, sink)

	var stderr bytes.Buffer
	sink, err = notificationSink(models.Notification{}, true, &stderr, logger)
	require.NoError(t, err)
	require.IsType(t, &notify.ConsoleSink{}, sink)
	require.NoError(t, sink.Send(context.Background(), "FAILURE: Check 1.1"))
	assert.Equal(t, "FAILURE: Check 1.1", stderr.String())
}

func TestConfigPath(t *testing.T) {
	path := writeConfig(t)
	_, out, _ := execute(t, "config", "path", "--config", path)
	assert.Equal(t, path+"\n", out)
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DASHCHECK_WAREHOUSE", "ANALYTICS_WH")
	t.Setenv("DASHCHECK_WORKERS", "7")

	a := newApp()
	a.configFile = writeConfig(t)
	cfg, err := a.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ANALYTICS_WH", cfg.Snowflake.Warehouse)
	assert.Equal(t, 7, cfg.Runtime.Workers)
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	t.Setenv("DASHCHECK_LOG_LEVEL", "chatty")

	a := newApp()
	a.configFile = writeConfig(t)
	_, err := a.loadConfig()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestValidateFlagErrors(t *testing.T) {
	path := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"--format", "yaml"}, "must be one of text, table, json"},
		{"bad stage", []string{"--stage", "4"}, "stage"},
		{"unknown tenant", []string{"--tenant", "globex"}, `unknown tenant "globex"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"validate", "--config", path}, tt.args...)
			code, _, errOut := execute(t, args...)
			assert.Equal(t, exitError, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestValidateWithoutPassword(t *testing.T) {
	keyring.MockInit()
	t.Setenv(snowflake.EnvPassword, "")

	code, _, errOut := execute(t, "validate", "--config", writeConfig(t))
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, string(apperrors.ErrCodeConfigMissing))
	assert.Contains(t, errOut, "config set-password")
}

func TestConfigSetPasswordFromStdin(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t)

	var out bytes.Buffer
	prev := ui.Out
	ui.Out = &out
	t.Cleanup(func() { ui.Out = prev })

	root := NewRootCommand()
	root.SetArgs([]string{"config", "set-password", "--stdin", "--config", path})
	root.SetIn(strings.NewReader("hunter2\n"))
	root.SetOut(&out)
	root.SetErr(&out)
	require.NoError(t, root.Execute())

	stored, err := keyring.Get(snowflake.KeyringService, snowflake.KeyringKey("xy12345.eu-west-2", "analyst"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored)
	assert.Contains(t, out.String(), "Password stored for xy12345.eu-west-2/analyst")
}

func TestConfigSetPasswordEmpty(t *testing.T) {
	keyring.MockInit()

	root := NewRootCommand()
	root.SetArgs([]string{"config", "set-password", "--stdin", "--config", writeConfig(t)})
	root.SetIn(strings.NewReader("\n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := writeConfig(t)

	code, _, errOut := execute(t, "init", "--output", path)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "already exists")
}

type interruptAsker struct{}

func (interruptAsker) Ask([]*survey.Question, interface{}) error { return terminal.InterruptErr }
func (interruptAsker) AskOne(survey.Prompt, interface{}) error    { return terminal.InterruptErr }

func TestInitCancelled(t *testing.T) {
	prev := ui.Out
	ui.Out = &bytes.Buffer{}
	t.Cleanup(func() { ui.Out = prev })

	a := newApp()
	a.asker = interruptAsker{}
	path := filepath.Join(t.TempDir(), "new.yaml")

	root := newRootCommand(a)
	root.SetArgs([]string{"init", "--output", path})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	assert.ErrorIs(t, err, ui.ErrWizardCancelled)
	assert.NoFileExists(t, path)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFindings, exitCode(errFindings))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitError, exitCode(apperrors.ConfigError("bad", "x")))
}
