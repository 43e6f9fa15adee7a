package snowflake

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	apperrors "dashcheck/pkg/errors"
)

const (
	// KeyringService is the service name passwords are stored under.
	KeyringService = "dashcheck"
	// EnvPassword is consulted when the config carries no password.
	EnvPassword = "SNOWFLAKE_PASSWORD"
)

// KeyringKey identifies a stored password.
func KeyringKey(account, username string) string {
	return fmt.Sprintf("%s/%s", account, username)
}

// LoadEnvFiles loads the given .env files that exist into the environment
// without overriding variables that are already set.
func LoadEnvFiles(files ...string) (int, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// ResolvePassword fills config.Password from, in order, the config itself,
// SNOWFLAKE_PASSWORD and the system keyring.
func ResolvePassword(config Config) (Config, error) {
	if config.Password != "" {
		return config, nil
	}
	if pw := os.Getenv(EnvPassword); pw != "" {
		config.Password = pw
		return config, nil
	}

	pw, err := keyring.Get(KeyringService, KeyringKey(config.Account, config.Username))
	switch {
	case err == nil:
		config.Password = pw
		return config, nil
	case errors.Is(err, keyring.ErrNotFound):
		return config, apperrors.New(apperrors.ErrCodeConfigMissing, "no Snowflake password configured").
			WithContext("field", "snowflake.password").
			WithSuggestions(
				fmt.Sprintf("Set %s or add it to a .env file", EnvPassword),
				"Run 'dashcheck config set-password' to store it in the system keyring",
			)
	default:
		return config, apperrors.Wrap(err, apperrors.ErrCodeConfigMissing, "failed to read password from keyring").
			WithContext("field", "snowflake.password")
	}
}

// StorePassword saves the password for account/username in the keyring.
func StorePassword(account, username, password string) error {
	if err := keyring.Set(KeyringService, KeyringKey(account, username), password); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to store password in keyring")
	}
	return nil
}
