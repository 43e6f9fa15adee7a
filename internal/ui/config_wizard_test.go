package ui

import (
	"errors"
	"fmt"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dashcheck/pkg/errors"
)

// scriptedAsker answers each prompt type from fixed values.
type scriptedAsker struct {
	connection   connectionAnswers
	tenant       tenantAnswers
	runtime      runtimeAnswers
	notification notificationAnswers
	confirms     []bool

	failOn int
	err    error
	calls  int
}

func (s *scriptedAsker) Ask(qs []*survey.Question, response interface{}) error {
	s.calls++
	if s.calls == s.failOn {
		return s.err
	}
	switch r := response.(type) {
	case *connectionAnswers:
		*r = s.connection
	case *tenantAnswers:
		*r = s.tenant
	case *runtimeAnswers:
		*r = s.runtime
	case *notificationAnswers:
		*r = s.notification
	default:
		return fmt.Errorf("unexpected response type %T", response)
	}
	return nil
}

func (s *scriptedAsker) AskOne(p survey.Prompt, response interface{}) error {
	s.calls++
	if s.calls == s.failOn {
		return s.err
	}
	b, ok := response.(*bool)
	if !ok || len(s.confirms) == 0 {
		return fmt.Errorf("unexpected prompt %T", p)
	}
	*b, s.confirms = s.confirms[0], s.confirms[1:]
	return nil
}

func newScript() *scriptedAsker {
	return &scriptedAsker{
		connection: connectionAnswers{
			Account:   "xy12345.eu-west-2",
			Username:  " analyst ",
			Password:  "s3cret",
			Warehouse: "COMPUTE_WH",
			Role:      "ANALYST",
		},
		tenant: tenantAnswers{
			Name:            "acme",
			Regions:         "uk, eu",
			SourceDatabases: "acme_uk,acme_eu,",
		},
		runtime: runtimeAnswers{Workers: "8", QueryTimeout: "90s", LogLevel: "debug"},
		notification: notificationAnswers{
			Webhook: "https://hooks.slack.com/services/T/B/X",
			Channel: "#dq",
			Send:    true,
		},
		confirms: []bool{true, true},
	}
}

func TestNewConfigWizard(t *testing.T) {
	w := NewConfigWizard(nil)
	assert.Equal(t, 1, w.currentStep)
	assert.Equal(t, 5, w.totalSteps)
	assert.IsType(t, surveyAsker{}, w.asker)
}

func TestConfigWizardRun(t *testing.T) {
	buf := capture(t, false)

	result, err := NewConfigWizard(newScript()).Run()
	require.NoError(t, err)

	cfg := result.Config
	assert.Equal(t, "s3cret", result.Password)
	assert.Empty(t, cfg.Snowflake.Password)
	assert.Equal(t, "analyst", cfg.Snowflake.Username)
	assert.Equal(t, "ANALYST", cfg.Snowflake.Role)

	require.Len(t, cfg.Tenants, 1)
	tenant := cfg.Tenants[0]
	assert.Equal(t, []string{"uk", "eu"}, tenant.Regions)
	assert.Equal(t, []string{"acme_uk", "acme_eu"}, tenant.SourceDatabases)
	assert.Equal(t, "acme_prod_union", tenant.UnionDatabase)
	assert.Equal(t, "acme_dashboard_tables", tenant.DashboardDatabase)

	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.Equal(t, "90s", cfg.Runtime.QueryTimeout)
	assert.Equal(t, "debug", cfg.Runtime.LogLevel)

	assert.Equal(t, "#dq", cfg.Notification.Channel)
	assert.True(t, cfg.Notification.Send)

	out := buf.String()
	assert.Contains(t, out, "[Step 5/5] Review Configuration")
	assert.Contains(t, out, "uk         <- acme_uk")
}

func TestConfigWizardWithoutSlack(t *testing.T) {
	capture(t, false)
	script := newScript()
	script.confirms = []bool{false, true}

	result, err := NewConfigWizard(script).Run()
	require.NoError(t, err)
	assert.Empty(t, result.Config.Notification.SlackWebhookURL)
}

func TestConfigWizardRegionMismatch(t *testing.T) {
	capture(t, false)
	script := newScript()
	script.tenant.SourceDatabases = "acme_uk"

	_, err := NewConfigWizard(script).Run()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestConfigWizardCancelled(t *testing.T) {
	tests := []struct {
		name   string
		script func(*scriptedAsker)
		want   error
	}{
		{
			name:   "interrupt during connection",
			script: func(s *scriptedAsker) { s.failOn, s.err = 1, terminal.InterruptErr },
			want:   ErrWizardCancelled,
		},
		{
			name:   "declined at review",
			script: func(s *scriptedAsker) { s.confirms = []bool{false, false} },
			want:   ErrWizardCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture(t, false)
			script := newScript()
			tt.script(script)

			_, err := NewConfigWizard(script).Run()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigWizardPromptError(t *testing.T) {
	capture(t, false)
	script := newScript()
	boom := errors.New("tty closed")
	script.failOn, script.err = 3, boom

	_, err := NewConfigWizard(script).Run()
	assert.ErrorIs(t, err, boom)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b ,"))
	assert.Nil(t, splitList(""))
}
