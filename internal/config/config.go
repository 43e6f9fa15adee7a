package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dashcheck/internal/checks"
	"dashcheck/internal/common"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

const (
	// EnvConfigFile overrides the configuration file location.
	EnvConfigFile = "DASHCHECK_CONFIG"
	// LocalFileName is looked up in the working directory.
	LocalFileName = "dashcheck.yaml"
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dashcheck")
}

// GetConfigFile resolves the configuration file: $DASHCHECK_CONFIG, then
// ./dashcheck.yaml when present, then ~/.dashcheck/config.yaml.
func GetConfigFile() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err == nil {
			return cleaned
		}
	}
	if _, err := os.Stat(LocalFileName); err == nil {
		if cleaned, err := common.CleanPath(LocalFileName); err == nil {
			return cleaned
		}
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads, defaults and validates the configuration at path. An empty path
// resolves through GetConfigFile.
func Load(path string) (*models.Config, error) {
	if path == "" {
		path = GetConfigFile()
	}

	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("invalid config file path: %v", err), "config")
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.ErrCodeConfigNotFound, fmt.Sprintf("config file %s not found", cleanedPath)).
				WithContext("path", cleanedPath).
				WithSuggestions(
					"Run 'dashcheck init' to create a starter configuration",
					fmt.Sprintf("Point %s at an existing file", EnvConfigFile),
				)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to read config file").
			WithContext("path", cleanedPath)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies tenant defaults and validates it.
// Unknown keys are rejected so typos surface at load time.
func Parse(data []byte) (*models.Config, error) {
	var cfg models.Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to unmarshal config").
			WithSuggestions("Check the YAML syntax and key names")
	}

	for i := range cfg.Tenants {
		cfg.Tenants[i].ApplyDefaults()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs the struct rules and the cross-field rules the tags cannot
// express. The first violation is returned as a ConfigError naming its field.
func Validate(cfg *models.Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return apperrors.ConfigError(fmt.Sprintf("%s failed the '%s' rule", field, fe.Tag()), field)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "invalid configuration")
	}

	for _, d := range []struct{ field, value string }{
		{"snowflake.timeout", cfg.Snowflake.Timeout},
		{"runtime.query_timeout", cfg.Runtime.QueryTimeout},
	} {
		if d.value == "" {
			continue
		}
		if dur, err := time.ParseDuration(d.value); err != nil || dur <= 0 {
			return apperrors.ConfigError(fmt.Sprintf("%s must be a positive duration, got %q", d.field, d.value), d.field)
		}
	}

	seen := make(map[string]bool)
	for i, t := range cfg.Tenants {
		name := strings.ToLower(t.Name)
		if seen[name] {
			return apperrors.ConfigError(fmt.Sprintf("tenant %q is declared twice", t.Name), fmt.Sprintf("tenants[%d].name", i))
		}
		seen[name] = true

		if err := validateTenant(i, t); err != nil {
			return err
		}
	}
	return nil
}

func validateTenant(i int, t models.Tenant) error {
	prefix := fmt.Sprintf("tenants[%d]", i)

	// Region i is produced by source database i.
	if len(t.Regions) != len(t.SourceDatabases) {
		return apperrors.ConfigError(
			fmt.Sprintf("tenant %s: %d regions but %d source databases", t.Name, len(t.Regions), len(t.SourceDatabases)),
			prefix+".source_databases")
	}

	for table, parent := range t.Tables {
		field := fmt.Sprintf("%s.tables.%s", prefix, table)
		if parent.ParentQuery == "" {
			continue
		}
		if len(parent.ParentKeyColumns) != len(parent.KeyColumns) {
			return apperrors.ConfigError(
				fmt.Sprintf("tenant %s: table %s has %d key columns but %d parent key columns",
					t.Name, table, len(parent.KeyColumns), len(parent.ParentKeyColumns)),
				field+".parent_key_columns")
		}
		if !checks.StartsAtFrom(parent.ParentQuery) {
			return apperrors.ConfigError(
				fmt.Sprintf("tenant %s: parent query for %s must start at the FROM clause", t.Name, table),
				field+".parent_query")
		}
	}

	for j, c := range t.Comparisons {
		if _, err := checks.ParseComparator(c.Operator); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeUnsupportedComparator,
				fmt.Sprintf("tenant %s: comparison %s uses unsupported operator %q", t.Name, c.Name, c.Operator)).
				WithContext("field", fmt.Sprintf("%s.comparisons[%d].operator", prefix, j))
		}
	}
	return nil
}

// ApplyOverrides copies connection and runtime settings bound in v (flags or
// DASHCHECK_* environment variables) over the file values.
func ApplyOverrides(cfg *models.Config, v *viper.Viper) {
	if v == nil {
		return
	}
	strs := map[string]*string{
		"account":       &cfg.Snowflake.Account,
		"user":          &cfg.Snowflake.Username,
		"password":      &cfg.Snowflake.Password,
		"role":          &cfg.Snowflake.Role,
		"warehouse":     &cfg.Snowflake.Warehouse,
		"query-timeout": &cfg.Runtime.QueryTimeout,
		"log-level":     &cfg.Runtime.LogLevel,
		"log-format":    &cfg.Runtime.LogFormat,
		"slack-webhook": &cfg.Notification.SlackWebhookURL,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}
	if v.IsSet("workers") {
		if n := v.GetInt("workers"); n > 0 {
			cfg.Runtime.Workers = n
		}
	}
}

// Save writes cfg to path, creating its directory with owner-only access.
func Save(cfg *models.Config, path string) error {
	if path == "" {
		path = filepath.Join(GetConfigPath(), "config.yaml")
	}
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return apperrors.ConfigError(fmt.Sprintf("invalid config file path: %v", err), "config")
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleaned, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}
