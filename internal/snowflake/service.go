// Package snowflake implements warehouse.Executor on top of database/sql and
// the gosnowflake driver.
package snowflake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/sony/gobreaker"

	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

const (
	driverName = "snowflake"

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Config holds Snowflake connection configuration
type Config struct {
	Account      string
	Username     string
	Password     string
	Database     string
	Schema       string
	Warehouse    string
	Role         string
	Timeout      time.Duration
	QueryTimeout time.Duration
}

// ConfigFromModel builds a connection Config from the file configuration.
func ConfigFromModel(s models.Snowflake, r models.Runtime) Config {
	return Config{
		Account:      s.Account,
		Username:     s.Username,
		Password:     s.Password,
		Database:     s.Database,
		Schema:       s.Schema,
		Warehouse:    s.Warehouse,
		Role:         s.Role,
		Timeout:      s.ConnectTimeout(),
		QueryTimeout: r.QueryTimeoutDuration(),
	}
}

// Service runs validation queries against Snowflake.
type Service struct {
	mu        sync.Mutex
	db        *sql.DB
	config    Config
	connected bool
	breaker   *gobreaker.CircuitBreaker
	logger    logrus.FieldLogger
	retry     *apperrors.RetryConfig
}

// Option customises a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger    logrus.FieldLogger
	threshold uint32
	cooldown  time.Duration
	retry     *apperrors.RetryConfig
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithBreaker sets how many consecutive connection-level failures open the
// circuit and how long it stays open.
func WithBreaker(threshold uint32, cooldown time.Duration) Option {
	return func(o *serviceOptions) {
		o.threshold = threshold
		o.cooldown = cooldown
	}
}

func WithRetry(cfg *apperrors.RetryConfig) Option {
	return func(o *serviceOptions) { o.retry = cfg }
}

// NewService creates a new Snowflake service
func NewService(config Config, opts ...Option) *Service {
	o := serviceOptions{
		threshold: defaultBreakerThreshold,
		cooldown:  defaultBreakerCooldown,
		retry:     apperrors.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.logger = l
	}
	if config.Timeout == 0 {
		config.Timeout = models.DefaultConnectTimeout
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = models.DefaultQueryTimeout
	}

	s := &Service{
		config: config,
		logger: o.logger,
		retry:  o.retry,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "snowflake",
		Timeout: o.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.threshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("warehouse circuit breaker changed state")
		},
	})
	return s
}

// countsAsHealthy keeps errors caused by the query text itself from tripping
// the breaker; only connection-level trouble does.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	switch apperrors.GetErrorCode(err) {
	case apperrors.ErrCodeSQLSyntax, apperrors.ErrCodeSQLObjectNotFound,
		apperrors.ErrCodeSQLPermission, apperrors.ErrCodeCanceled:
		return true
	}
	return false
}

// DSN renders the gosnowflake data source name for the configuration.
func (s *Service) DSN() (string, error) {
	return sf.DSN(&sf.Config{
		Account:      s.config.Account,
		User:         s.config.Username,
		Password:     s.config.Password,
		Database:     s.config.Database,
		Schema:       s.config.Schema,
		Warehouse:    s.config.Warehouse,
		Role:         s.config.Role,
		LoginTimeout: s.config.Timeout,
	})
}

// Connect establishes a connection to Snowflake, retrying transient failures.
func (s *Service) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if err := ValidateConfig(s.config); err != nil {
		return err
	}

	dsn, err := s.DSN()
	if err != nil {
		return apperrors.ConnectionError("Failed to build Snowflake DSN", err).
			WithContext("account", s.config.Account)
	}

	retry := *s.retry
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("retrying Snowflake connection")
	}

	return apperrors.Retry(ctx, &retry, func(ctx context.Context) error {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return apperrors.ConnectionError("Failed to open Snowflake connection", err).
				WithContext("account", s.config.Account).
				WithContext("warehouse", s.config.Warehouse)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(10 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()

			if strings.Contains(strings.ToLower(err.Error()), "authentication") ||
				strings.Contains(strings.ToLower(err.Error()), "incorrect username or password") {
				return apperrors.New(apperrors.ErrCodeAuthenticationFailed, "Authentication failed").
					WithContext("user", s.config.Username).
					WithSuggestions(
						"Verify your username and password",
						"Check if your account is locked",
						"Store the password with 'dashcheck config set-password' or SNOWFLAKE_PASSWORD",
					)
			}

			return apperrors.ConnectionError("Failed to connect to Snowflake", err).
				WithContext("account", s.config.Account).
				AsRecoverable()
		}

		s.db = db
		s.connected = true
		s.logger.WithFields(logrus.Fields{
			"account":   s.config.Account,
			"warehouse": s.config.Warehouse,
		}).Info("connected to Snowflake")
		return nil
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// Query implements warehouse.Executor. Every query runs under the configured
// query timeout and through the circuit breaker.
func (s *Service) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	s.mu.Lock()
	db, connected := s.db, s.connected
	s.mu.Unlock()

	if !connected {
		return nil, apperrors.New(apperrors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before executing queries")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.query(ctx, db, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "Snowflake circuit breaker is open").
				WithContext("query", query).
				WithSuggestions("Check warehouse availability; the breaker closes after its cooldown")
		}
		return nil, err
	}
	return out.(*warehouse.Result), nil
}

func (s *Service) query(ctx context.Context, db *sql.DB, query string) (*warehouse.Result, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, queryFailure(ctx, query, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, queryFailure(ctx, query, err)
	}

	result := warehouse.NewResult(columns)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, queryFailure(ctx, query, err)
		}

		row := make(warehouse.Row, len(columns))
		for i, v := range values {
			row[i] = toValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailure(ctx, query, err)
	}

	s.logger.WithFields(logrus.Fields{
		"rows":     len(result.Rows),
		"duration": time.Since(start).String(),
	}).Debug("query complete")
	return result, nil
}

func queryFailure(ctx context.Context, query string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.SQLError("Query timed out", query, context.DeadlineExceeded)
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(context.Canceled, apperrors.ErrCodeCanceled, "Query canceled").
			WithContext("query", query)
	}
	return apperrors.SQLError("Failed to execute query", query, err)
}

// toValue converts a scanned driver value. gosnowflake returns fixed-point
// numbers as strings; they stay text and are parsed on demand.
func toValue(v interface{}) warehouse.Value {
	switch t := v.(type) {
	case nil:
		return warehouse.Null()
	case string:
		return warehouse.Text(t)
	case []byte:
		return warehouse.Text(string(t))
	case int64:
		return warehouse.Int(t)
	case int32:
		return warehouse.Int(int64(t))
	case int:
		return warehouse.Int(int64(t))
	case float64:
		return warehouse.Number(decimal.NewFromFloat(t))
	case float32:
		return warehouse.Number(decimal.NewFromFloat32(t))
	case bool:
		if t {
			return warehouse.Text("true")
		}
		return warehouse.Text("false")
	case time.Time:
		return warehouse.Text(t.Format(time.RFC3339Nano))
	default:
		return warehouse.Text(fmt.Sprint(t))
	}
}

// TestConnection connects if needed and pings the warehouse.
func (s *Service) TestConnection(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if err := db.PingContext(pingCtx); err != nil {
		return apperrors.ConnectionError("Snowflake did not answer the ping", err).
			WithContext("account", s.config.Account)
	}
	return nil
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	if config.Account == "" {
		return apperrors.ConfigError("account is required", "snowflake.account")
	}
	if config.Username == "" {
		return apperrors.ConfigError("username is required", "snowflake.username")
	}
	if config.Password == "" {
		return apperrors.ConfigError("password is required", "snowflake.password").
			WithSuggestions("Set SNOWFLAKE_PASSWORD or store it in the system keyring")
	}
	return nil
}

var _ warehouse.Executor = (*Service)(nil)
