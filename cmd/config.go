package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dashcheck/internal/config"
	"dashcheck/internal/lineage"
	"dashcheck/internal/snowflake"
	"dashcheck/internal/ui"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and maintain the dashcheck configuration",
	}
	cmd.AddCommand(
		newConfigValidateCmd(a),
		newConfigPathCmd(a),
		newConfigSetPasswordCmd(a),
	)
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Long: `Load and validate the configuration without querying Snowflake. With
--connect, also open a connection and ping the warehouse.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %d tenant(s)\n", len(cfg.Tenants))
			for _, t := range cfg.Tenants {
				fmt.Fprintf(out, "  %s: %d region(s), %d mapped table(s), %d definition(s), %d dashboard check(s)\n",
					t.Name,
					len(t.Regions),
					len(t.Tables),
					len(t.Definitions),
					len(t.Statistics)+len(t.Cumulative)+len(t.Invariants)+len(t.BusinessLogic)+len(t.Comparisons),
				)
				if leaves := lineage.New(t.Lineage).Unknown(); len(leaves) > 0 {
					fmt.Fprintf(out, "    lineage leaves: %s\n", strings.Join(leaves, ", "))
				}
			}

			if !connect {
				return nil
			}
			return a.ping(cmd, cfg)
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "also test the Snowflake connection")
	return cmd
}

// ping opens a connection with the configured credentials and pings it.
func (a *app) ping(cmd *cobra.Command, cfg *models.Config) error {
	sfConfig, err := snowflake.ResolvePassword(snowflake.ConfigFromModel(cfg.Snowflake, cfg.Runtime))
	if err != nil {
		return err
	}
	svc := snowflake.NewService(sfConfig, snowflake.WithLogger(a.newLogger(cfg, cmd.ErrOrStderr())))
	defer svc.Close()

	spinner := ui.NewSpinner("Testing Snowflake connection...")
	spinner.Start()
	if err := svc.TestConnection(cmd.Context()); err != nil {
		spinner.Stop(false, "Connection failed")
		return err
	}
	spinner.Stop(true, fmt.Sprintf("Connected to %s as %s", cfg.Snowflake.Account, cfg.Snowflake.Username))
	return nil
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			path := a.configFile
			if path == "" {
				path = config.GetConfigFile()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	}
}

func newConfigSetPasswordCmd(a *app) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Store the Snowflake password in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var password string
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return apperrors.ValidationError("password", "", "no password on standard input")
				}
				password = strings.TrimRight(line, "\r\n")
			} else {
				password, err = ui.Password(fmt.Sprintf("Password for %s@%s:", cfg.Snowflake.Username, cfg.Snowflake.Account))
				if err != nil {
					return err
				}
			}
			if password == "" {
				return apperrors.ValidationError("password", "", "must not be empty")
			}

			if err := snowflake.StorePassword(cfg.Snowflake.Account, cfg.Snowflake.Username, password); err != nil {
				return err
			}
			ui.ShowSuccess(fmt.Sprintf("Password stored for %s", snowflake.KeyringKey(cfg.Snowflake.Account, cfg.Snowflake.Username)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the password from standard input")
	return cmd
}
