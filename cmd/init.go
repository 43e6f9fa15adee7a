package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dashcheck/internal/config"
	"dashcheck/internal/snowflake"
	"dashcheck/internal/ui"
	apperrors "dashcheck/pkg/errors"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.LocalFileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return apperrors.ConfigError(fmt.Sprintf("%s already exists", path), "config").
					WithSuggestions("Use --force to overwrite it")
			}

			result, err := ui.NewConfigWizard(a.asker).Run()
			if err != nil {
				return err
			}
			if err := config.Validate(result.Config); err != nil {
				return err
			}
			if err := config.Save(result.Config, path); err != nil {
				return err
			}
			ui.ShowSuccess(fmt.Sprintf("Configuration written to %s", path))

			if result.Password != "" {
				sf := result.Config.Snowflake
				if err := snowflake.StorePassword(sf.Account, sf.Username, result.Password); err != nil {
					ui.ShowWarning(fmt.Sprintf("Password not stored: %v", err))
				} else {
					ui.ShowSuccess("Password stored in the system keyring")
				}
			}
			ui.ShowInfo("Add table mappings, definitions and dashboard checks, then run 'dashcheck config validate'")
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", "", "file to write (default ./"+config.LocalFileName+")")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
