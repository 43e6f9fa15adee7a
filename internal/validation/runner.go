// Package validation drives the three validation stages for a tenant: it
// enumerates the checks a stage needs, runs them on a bounded worker group
// and records every non-passing verdict in the tenant's ledger.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dashcheck/internal/checks"
	"dashcheck/internal/ledger"
	"dashcheck/internal/lineage"
	"dashcheck/internal/observability"
	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

// AllStages is the default stage selection.
var AllStages = []int{1, 2, 3}

// Runner executes validation stages against one warehouse.
type Runner struct {
	exec    warehouse.Executor
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	workers int
}

type Option func(*Runner)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithWorkers bounds how many checks of a stage run at once. Values below 1
// mean sequential execution.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

func NewRunner(exec warehouse.Executor, opts ...Option) *Runner {
	r := &Runner{exec: exec, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		r.logger = l
	}
	return r
}

// Run executes the given stages in order for tenant, recording into l.
func (r *Runner) Run(ctx context.Context, tenant models.Tenant, l *ledger.Ledger, stages ...int) (*ledger.Ledger, error) {
	if len(stages) == 0 {
		stages = AllStages
	}
	for _, stage := range stages {
		var err error
		switch stage {
		case 1:
			_, err = r.Stage1(ctx, tenant, l)
		case 2:
			_, err = r.Stage2(ctx, tenant, l)
		case 3:
			_, err = r.Stage3(ctx, tenant, l)
		default:
			err = apperrors.ConfigError(fmt.Sprintf("unknown stage %d", stage), "stage")
		}
		if err != nil {
			return l, err
		}
	}
	return l, nil
}

// RunTenants validates every tenant into set, each ledger resolving
// dependencies through the tenant's lineage. It stops at the first error.
func (r *Runner) RunTenants(ctx context.Context, tenants []models.Tenant, set *ledger.Set, stages ...int) error {
	for _, tenant := range tenants {
		l := set.For(tenant.Name, ledger.WithDependencies(lineage.New(tenant.Lineage)))

		start := time.Now()
		log := r.logger.WithField("tenant", tenant.Name)
		log.Info("validating tenant")

		if _, err := r.Run(ctx, tenant, l, stages...); err != nil {
			log.WithError(err).Error("validation aborted")
			return err
		}
		log.WithFields(logrus.Fields{
			"failures": l.Count(ledger.KindFailure),
			"warnings": l.Count(ledger.KindWarning),
			"duration": time.Since(start).String(),
		}).Info("tenant validated")
	}
	return nil
}

// ParseStages parses a comma separated stage list such as "1,3".
func ParseStages(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return AllStages, nil
	}
	seen := make(map[int]bool)
	var stages []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || n > 3 {
			return nil, apperrors.ValidationError("stage", part, "stages are 1, 2 and 3")
		}
		if !seen[n] {
			seen[n] = true
			stages = append(stages, n)
		}
	}
	sort.Ints(stages)
	return stages, nil
}

// job is one check invocation together with the ledger entry a non-passing
// verdict produces.
type job struct {
	check    string
	entity   string
	database string
	key      string
	// altKey replaces key when the entity already holds a finding under key.
	altKey string
	kind   ledger.Kind
	// message describes the failure without its kind prefix or values.
	message string
	run     func(ctx context.Context) (checks.Result, error)
}

type outcome struct {
	result checks.Result
	done   bool
}

// execute runs jobs on an errgroup bounded by the worker count. Verdicts are
// recorded in job order once the group finishes; when a job fails, the
// verdicts of the jobs that completed are still recorded and the first
// error is returned.
func (r *Runner) execute(ctx context.Context, l *ledger.Ledger, jobs []job) error {
	outcomes := make([]outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			j := jobs[i]
			start := time.Now()
			res, err := j.run(gctx)
			if err != nil {
				return err
			}
			r.metrics.ObserveCheck(j.check, res.Status.String(), time.Since(start))
			outcomes[i] = outcome{result: res, done: true}
			return nil
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "validation canceled")
	}

	for i, o := range outcomes {
		if o.done {
			r.record(l, jobs[i], o.result)
		}
	}
	return err
}

func (r *Runner) record(l *ledger.Ledger, j job, res checks.Result) {
	if res.Status != checks.StatusPass && j.altKey != "" {
		if rec, ok := l.Get(j.entity); ok {
			if _, taken := rec.Finding(j.key); taken {
				j.key = j.altKey
			}
		}
	}

	log := r.logger.WithFields(logrus.Fields{
		"tenant": l.Tenant(),
		"check":  j.check,
		"entity": j.entity,
		"key":    j.key,
	})

	switch res.Status {
	case checks.StatusPass:
		log.WithField("detail", res.Detail).Debug("check passed")
	case checks.StatusNotApplicable:
		log.WithField("detail", res.Detail).Info("skipped")
		l.Record(j.entity, j.database, j.key, ledger.KindNotChecked,
			fmt.Sprintf("%s: %s - %s", ledger.KindNotChecked, j.message, res.Detail))
		r.metrics.ObserveFinding(l.Tenant(), ledger.KindNotChecked.String())
	case checks.StatusFail:
		log.WithField("detail", res.Detail).Warn("check failed")
		l.Record(j.entity, j.database, j.key, j.kind,
			fmt.Sprintf("%s: %s - values: %s", j.kind, j.message, res.Detail))
		r.metrics.ObserveFinding(l.Tenant(), j.kind.String())
	}
}

// catalogError annotates an error raised while enumerating the warehouse.
func catalogError(err error, message string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, message)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeSQLTimeout, message)
	}
	code := apperrors.GetErrorCode(err)
	if code == apperrors.ErrCodeInternal {
		code = apperrors.ErrCodeSQLExecution
	}
	return apperrors.Wrap(err, code, message)
}

func namespace(value, field string) (warehouse.Namespace, error) {
	ns, err := warehouse.ParseNamespace(value)
	if err != nil {
		return warehouse.Namespace{}, apperrors.ConfigError(err.Error(), field)
	}
	return ns, nil
}
