package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

// ErrWizardCancelled is returned when the user aborts the wizard.
var ErrWizardCancelled = errors.New("configuration cancelled")

// Asker runs survey prompts. Tests replace it to answer without a terminal.
type Asker interface {
	Ask(qs []*survey.Question, response interface{}) error
	AskOne(p survey.Prompt, response interface{}) error
}

type surveyAsker struct{}

func (surveyAsker) Ask(qs []*survey.Question, response interface{}) error {
	return survey.Ask(qs, response)
}

func (surveyAsker) AskOne(p survey.Prompt, response interface{}) error {
	return survey.AskOne(p, response)
}

// WizardResult is the configuration built by the wizard. The password is
// kept out of Config so the caller can store it in the keyring.
type WizardResult struct {
	Config   *models.Config
	Password string
}

// ConfigWizard provides an interactive configuration setup
type ConfigWizard struct {
	asker       Asker
	currentStep int
	totalSteps  int
}

// NewConfigWizard creates a wizard that prompts on the terminal. A nil
// asker uses survey directly.
func NewConfigWizard(asker Asker) *ConfigWizard {
	if asker == nil {
		asker = surveyAsker{}
	}
	return &ConfigWizard{
		asker:       asker,
		currentStep: 1,
		totalSteps:  5,
	}
}

type connectionAnswers struct {
	Account   string
	Username  string
	Password  string
	Warehouse string
	Role      string
}

type tenantAnswers struct {
	Name            string
	Regions         string
	SourceDatabases string `survey:"sources"`
}

type runtimeAnswers struct {
	Workers      string
	QueryTimeout string `survey:"queryTimeout"`
	LogLevel     string `survey:"logLevel"`
}

type notificationAnswers struct {
	Webhook string
	Channel string
	Send    bool
}

// Run executes the configuration wizard
func (w *ConfigWizard) Run() (*WizardResult, error) {
	ShowHeader("dashcheck - Configuration Setup")

	result := &WizardResult{Config: &models.Config{}}
	steps := []func(*WizardResult) error{
		w.configureConnectionStep,
		w.configureTenantStep,
		w.configureRuntimeStep,
		w.configureNotificationStep,
		w.reviewConfiguration,
	}
	for _, step := range steps {
		if err := step(result); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil, ErrWizardCancelled
			}
			return nil, err
		}
	}
	return result, nil
}

func (w *ConfigWizard) configureConnectionStep(result *WizardResult) error {
	w.showProgress("Snowflake Connection")

	questions := []*survey.Question{
		{
			Name: "account",
			Prompt: &survey.Input{
				Message: "Snowflake Account:",
				Help:    "Your Snowflake account identifier (e.g., xy12345.eu-west-2)",
			},
			Validate: survey.Required,
		},
		{
			Name:     "username",
			Prompt:   &survey.Input{Message: "Username:"},
			Validate: survey.Required,
		},
		{
			Name: "password",
			Prompt: &survey.Password{
				Message: "Password:",
				Help:    "Stored in the system keyring, never in the config file",
			},
		},
		{
			Name: "warehouse",
			Prompt: &survey.Input{
				Message: "Warehouse:",
				Default: "COMPUTE_WH",
			},
			Validate: survey.Required,
		},
		{
			Name: "role",
			Prompt: &survey.Input{
				Message: "Role:",
				Help:    "Role with read access to the union, base and dashboard databases",
			},
		},
	}

	var answers connectionAnswers
	if err := w.asker.Ask(questions, &answers); err != nil {
		return err
	}

	result.Config.Snowflake = models.Snowflake{
		Account:   strings.TrimSpace(answers.Account),
		Username:  strings.TrimSpace(answers.Username),
		Warehouse: strings.TrimSpace(answers.Warehouse),
		Role:      strings.TrimSpace(answers.Role),
	}
	result.Password = answers.Password

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureTenantStep(result *WizardResult) error {
	w.showProgress("First Tenant")

	questions := []*survey.Question{
		{
			Name: "name",
			Prompt: &survey.Input{
				Message: "Tenant name:",
				Help:    "Used to derive <name>_prod_union, <name>_base_tables and <name>_dashboard_tables",
			},
			Validate: survey.Required,
		},
		{
			Name: "regions",
			Prompt: &survey.Input{
				Message: "Regions (comma separated):",
				Help:    "Region names in the order of the source databases",
			},
			Validate: survey.Required,
		},
		{
			Name: "sources",
			Prompt: &survey.Input{
				Message: "Source databases (comma separated):",
				Help:    "One production database per region, in the same order",
			},
			Validate: survey.Required,
		},
	}

	var answers tenantAnswers
	if err := w.asker.Ask(questions, &answers); err != nil {
		return err
	}

	tenant := models.Tenant{
		Name:            strings.TrimSpace(answers.Name),
		Regions:         splitList(answers.Regions),
		SourceDatabases: splitList(answers.SourceDatabases),
	}
	if len(tenant.Regions) != len(tenant.SourceDatabases) {
		return apperrors.ConfigError(
			fmt.Sprintf("%d regions but %d source databases", len(tenant.Regions), len(tenant.SourceDatabases)),
			"tenants[0].source_databases")
	}
	tenant.ApplyDefaults()
	result.Config.Tenants = []models.Tenant{tenant}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureRuntimeStep(result *WizardResult) error {
	w.showProgress("Runtime Settings")

	questions := []*survey.Question{
		{
			Name: "workers",
			Prompt: &survey.Input{
				Message: "Concurrent queries per stage:",
				Default: "4",
			},
			Validate: func(val interface{}) error {
				n, err := strconv.Atoi(fmt.Sprint(val))
				if err != nil || n < 1 || n > 64 {
					return errors.New("enter a number between 1 and 64")
				}
				return nil
			},
		},
		{
			Name: "queryTimeout",
			Prompt: &survey.Input{
				Message: "Query timeout:",
				Default: models.DefaultQueryTimeout.String(),
				Help:    "Maximum time for a single query, e.g. 90s or 5m",
			},
			Validate: func(val interface{}) error {
				d, err := time.ParseDuration(fmt.Sprint(val))
				if err != nil || d <= 0 {
					return errors.New("enter a positive duration such as 5m")
				}
				return nil
			},
		},
		{
			Name: "logLevel",
			Prompt: &survey.Select{
				Message: "Log Level:",
				Options: []string{"debug", "info", "warn", "error"},
				Default: "info",
			},
		},
	}

	var answers runtimeAnswers
	if err := w.asker.Ask(questions, &answers); err != nil {
		return err
	}

	workers, err := strconv.Atoi(answers.Workers)
	if err != nil {
		return apperrors.ValidationError("runtime.workers", answers.Workers, "must be a number")
	}
	result.Config.Runtime = models.Runtime{
		Workers:      workers,
		QueryTimeout: answers.QueryTimeout,
		LogLevel:     answers.LogLevel,
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureNotificationStep(result *WizardResult) error {
	w.showProgress("Notifications")

	useSlack := false
	prompt := &survey.Confirm{
		Message: "Post reports to Slack?",
		Default: false,
	}
	if err := w.asker.AskOne(prompt, &useSlack); err != nil {
		return err
	}
	if !useSlack {
		w.currentStep++
		return nil
	}

	questions := []*survey.Question{
		{
			Name:     "webhook",
			Prompt:   &survey.Input{Message: "Slack incoming webhook URL:"},
			Validate: survey.Required,
		},
		{
			Name:   "channel",
			Prompt: &survey.Input{Message: "Channel (optional):"},
		},
		{
			Name: "send",
			Prompt: &survey.Confirm{
				Message: "Send on every run by default?",
				Default: false,
			},
		},
	}

	var answers notificationAnswers
	if err := w.asker.Ask(questions, &answers); err != nil {
		return err
	}
	result.Config.Notification = models.Notification{
		SlackWebhookURL: strings.TrimSpace(answers.Webhook),
		Channel:         strings.TrimSpace(answers.Channel),
		Send:            answers.Send,
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) reviewConfiguration(result *WizardResult) error {
	w.showProgress("Review Configuration")
	cfg := result.Config

	fmt.Fprintln(Out, "\n"+ColorInfo("Configuration Summary:"))
	fmt.Fprintln(Out, strings.Repeat("-", 50))

	fmt.Fprintln(Out, ColorBold("\nSnowflake Settings:"))
	fmt.Fprintf(Out, "  Account:   %s\n", cfg.Snowflake.Account)
	fmt.Fprintf(Out, "  Username:  %s\n", cfg.Snowflake.Username)
	fmt.Fprintf(Out, "  Warehouse: %s\n", cfg.Snowflake.Warehouse)
	fmt.Fprintf(Out, "  Role:      %s\n", cfg.Snowflake.Role)

	for _, t := range cfg.Tenants {
		fmt.Fprintln(Out, ColorBold("\nTenant "+t.Name+":"))
		for i, region := range t.Regions {
			fmt.Fprintf(Out, "  %-10s <- %s\n", region, t.SourceDatabases[i])
		}
		fmt.Fprintf(Out, "  Union:     %s\n", t.UnionDatabase)
		fmt.Fprintf(Out, "  Base:      %s\n", t.BaseDatabase)
		fmt.Fprintf(Out, "  Dashboard: %s\n", t.DashboardDatabase)
	}

	if cfg.Notification.SlackWebhookURL != "" {
		fmt.Fprintln(Out, ColorBold("\nNotifications:"))
		fmt.Fprintf(Out, "  Slack channel: %s (send by default: %t)\n", cfg.Notification.Channel, cfg.Notification.Send)
	}
	fmt.Fprintln(Out, strings.Repeat("-", 50))

	confirm := false
	prompt := &survey.Confirm{
		Message: "Save this configuration?",
		Default: true,
	}
	if err := w.asker.AskOne(prompt, &confirm); err != nil {
		return err
	}
	if !confirm {
		return ErrWizardCancelled
	}
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(Out, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress(">"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Password prompts for a secret without echoing it.
func Password(message string) (string, error) {
	var value string
	err := survey.AskOne(&survey.Password{Message: message}, &value, survey.WithValidator(survey.Required))
	if errors.Is(err, terminal.InterruptErr) {
		return "", ErrWizardCancelled
	}
	return value, err
}
