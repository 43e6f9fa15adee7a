package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dashcheck/internal/common"
	"dashcheck/internal/ledger"
	"dashcheck/internal/notify"
	"dashcheck/internal/observability"
	"dashcheck/internal/report"
	"dashcheck/internal/snowflake"
	"dashcheck/internal/ui"
	"dashcheck/internal/validation"
	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

var formats = []string{"text", "table", "json"}

type validateOptions struct {
	tenants        []string
	stages         string
	format         string
	xlsx           string
	metricsFile    string
	send           bool
	showSkipped    bool
	failOnFindings bool
}

func newValidateCmd(a *app) *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the validation stages against Snowflake",
		Long: `Run the validation stages for every configured tenant, or the ones
named with --tenant, and print the failures report.

Exit status is 0 when the run completes, 1 on configuration or Snowflake
errors, and 2 when --fail-on-findings is set and a validation failure was
recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.tenants, "tenant", "t", nil, "tenant to validate (repeatable, default all)")
	f.StringVarP(&opts.stages, "stage", "s", "1,2,3", "comma separated stages to run")
	f.Int("workers", 0, "concurrent queries per stage")
	f.StringVarP(&opts.format, "format", "f", "text", "report format: "+strings.Join(formats, ", "))
	f.StringVar(&opts.xlsx, "xlsx", "", "also write the findings to this xlsx workbook")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write check metrics in Prometheus textfile format")
	f.BoolVar(&opts.send, "send", false, "post the report to the configured Slack webhook")
	f.BoolVar(&opts.showSkipped, "show-skipped", false, "include checks that could not be applied")
	f.BoolVar(&opts.failOnFindings, "fail-on-findings", false, "exit with status 2 when validation failures are found")

	f.String("account", "", "Snowflake account identifier")
	f.String("user", "", "Snowflake user")
	f.String("role", "", "Snowflake role")
	f.String("warehouse", "", "Snowflake warehouse")
	f.String("query-timeout", "", "per-query timeout, e.g. 5m")
	f.String("slack-webhook", "", "Slack incoming webhook URL")
	bindFlags(a.v, f, "workers", "account", "user", "role", "warehouse", "query-timeout", "slack-webhook")
	return cmd
}

func (a *app) runValidate(cmd *cobra.Command, opts validateOptions) error {
	ctx := cmd.Context()

	if !contains(formats, opts.format) {
		return apperrors.ValidationError("format", opts.format, "must be one of "+strings.Join(formats, ", "))
	}
	stages, err := validation.ParseStages(opts.stages)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	tenants, err := selectTenants(cfg, opts.tenants)
	if err != nil {
		return err
	}
	logger := a.newLogger(cfg, cmd.ErrOrStderr())

	sfConfig, err := snowflake.ResolvePassword(snowflake.ConfigFromModel(cfg.Snowflake, cfg.Runtime))
	if err != nil {
		return err
	}
	svc := snowflake.NewService(sfConfig, snowflake.WithLogger(logger))

	spinner := ui.NewSpinner("Connecting to Snowflake...")
	spinner.Start()
	if err := svc.Connect(ctx); err != nil {
		spinner.Stop(false, "Connection failed")
		return err
	}
	spinner.Stop(true, "Connected to Snowflake")
	defer svc.Close()

	metrics := observability.NewMetrics()
	exec := warehouse.NewCachingExecutor(svc, 0)
	runner := validation.NewRunner(exec,
		validation.WithLogger(logger),
		validation.WithMetrics(metrics),
		validation.WithWorkers(cfg.Runtime.Workers),
	)

	set := ledger.NewSet()
	start := time.Now()
	runErr := runner.RunTenants(ctx, tenants, set, stages...)
	stats := exec.Stats()
	logger.WithFields(logrus.Fields{
		"duration":         ui.FormatDuration(time.Since(start)),
		"catalog_hits":     stats.Hits,
		"catalog_misses":   stats.Misses,
		"catalog_hit_rate": fmt.Sprintf("%.1f%%", stats.HitRate()),
	}).Info("validation run finished")

	if opts.metricsFile != "" {
		if err := writeMetrics(metrics, opts.metricsFile); err != nil {
			logger.WithError(err).Warn("failed to write metrics file")
		}
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	renderOpts := report.Options{IncludeNotChecked: opts.showSkipped, Color: report.IsTerminal(out)}
	if err := render(out, set, opts.format, renderOpts); err != nil {
		return err
	}

	if opts.xlsx != "" {
		if err := report.WriteWorkbook(opts.xlsx, set, renderOpts); err != nil {
			return err
		}
		logger.WithField("path", opts.xlsx).Info("workbook written")
	}

	send := opts.send || cfg.Notification.Send
	sink, err := notificationSink(cfg.Notification, send, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	notifyOpts := report.Options{IncludeNotChecked: opts.showSkipped}
	if err := notify.Dispatch(ctx, sink, set, notifyOpts, send, logger); err != nil {
		return err
	}

	if opts.failOnFindings && set.HasFailures() {
		return errFindings
	}
	return nil
}

func render(w io.Writer, set *ledger.Set, format string, opts report.Options) error {
	var err error
	switch format {
	case "table":
		err = report.RenderTable(w, set, opts)
	case "json":
		err = report.RenderJSON(w, set, opts)
	default:
		err = report.RenderText(w, set, opts)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeReportWrite, "failed to write report")
	}
	return nil
}

// notificationSink posts to Slack when a webhook is configured. A requested
// notification without a webhook is written to stderr instead.
func notificationSink(n models.Notification, send bool, stderr io.Writer, logger logrus.FieldLogger) (notify.Sink, error) {
	if n.SlackWebhookURL != "" {
		sink, err := notify.NewSlackSink(n)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	if send {
		logger.Warn("No Slack webhook configured, writing the notification to stderr")
	}
	return notify.NewConsoleSink(stderr), nil
}

func writeMetrics(m *observability.Metrics, path string) error {
	out, err := common.PrepareOutput(path)
	if err != nil {
		return err
	}
	return m.WriteTextfile(out)
}

// selectTenants returns the named tenants in the order given, or every
// tenant when names is empty.
func selectTenants(cfg *models.Config, names []string) ([]models.Tenant, error) {
	if len(names) == 0 {
		return cfg.Tenants, nil
	}
	out := make([]models.Tenant, 0, len(names))
	for _, name := range names {
		t, ok := cfg.Tenant(name)
		if !ok {
			known := make([]string, 0, len(cfg.Tenants))
			for _, t := range cfg.Tenants {
				known = append(known, t.Name)
			}
			return nil, apperrors.ConfigError(fmt.Sprintf("unknown tenant %q", name), "tenant").
				WithSuggestions("Configured tenants: " + strings.Join(known, ", "))
		}
		out = append(out, t)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
