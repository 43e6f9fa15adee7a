// Package notify delivers a rendered report to its audience.
package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"dashcheck/internal/ledger"
	"dashcheck/internal/observability"
	"dashcheck/internal/report"
	apperrors "dashcheck/pkg/errors"
)

// Sink receives a rendered report.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// ConsoleSink writes reports to an io.Writer.
type ConsoleSink struct {
	w io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(c.w, text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNotificationFailed, "failed to write report")
	}
	return nil
}

// Dispatch renders set as plain text and hands it to sink when send is set.
// With send unset, or no finding that opts would show, it only logs.
func Dispatch(ctx context.Context, sink Sink, set *ledger.Set, opts report.Options, send bool, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = observability.Discard()
	}
	if !send {
		logger.Info("Notification disabled, report not sent")
		return nil
	}
	if sink == nil {
		return apperrors.ConfigError("notification requested but no sink is configured", "notification.slack_webhook_url")
	}

	total := report.Total(report.Summary(set))
	pending := total.Failures + total.Warnings
	if opts.IncludeNotChecked {
		pending += total.NotChecked
	}
	if pending == 0 {
		logger.Info("No findings, nothing to send")
		return nil
	}

	text := report.Text(set, opts)
	if err := sink.Send(ctx, text); err != nil {
		logger.WithError(err).Error("Failed to send report")
		return err
	}
	logger.WithFields(logrus.Fields{
		"bytes":    len(text),
		"findings": pending,
	}).Info("Report sent")
	return nil
}
