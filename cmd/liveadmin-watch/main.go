package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amoylab/liveadmin/internal/client"
	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/pkg/logger"
	"github.com/amoylab/liveadmin/pkg/version"
	"github.com/spf13/cobra"
)

var (
	configPath string
	username   string
	password   string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of liveadmin-watch",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "liveadmin-watch version %s\n", version.Get())
		},
	}

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token used by watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				if password, err = readPassword(cmd); err != nil {
					return err
				}
			}
			return login(cmd.Context(), cmd, cfg, http.DefaultClient, username, password)
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := client.NewFileCredentials(cfg.TokenFile).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:   "liveadmin-watch",
		Short: "Follow admin notifications from a terminal",
		Long:  `liveadmin-watch joins the admin notification channel, prints presence and activity events and reconnects when the connection drops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lg, err := logger.NewLogger(&cfg.Logger)
			if err != nil {
				return err
			}
			defer lg.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			restart := make(chan os.Signal, 1)
			signal.Notify(restart, syscall.SIGHUP)
			defer signal.Stop(restart)

			w, err := newWatcher(lg, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return w.run(ctx, restart)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.WatchYaml, "path to configuration file")
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "admin password, prompted when empty")
	rootCmd.AddCommand(versionCmd, loginCmd, logoutCmd)
}

// loadConfig falls back to defaults when no configuration file exists
func loadConfig() (*config.WatchConfig, error) {
	cfg, path, err := config.LoadConfig[config.WatchConfig](configPath)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return config.DefaultWatchConfig(), nil
	}
	return nil, fmt.Errorf("failed to load config %s: %w", path, err)
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func login(ctx context.Context, cmd *cobra.Command, cfg *config.WatchConfig, hc *http.Client, user, pass string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := client.Login(ctx, hc, cfg.ServerURL, user, pass)
	if err != nil {
		return err
	}
	creds := client.NewFileCredentials(cfg.TokenFile)
	if err := creds.Save(resp.Token); err != nil {
		return err
	}
	role := ""
	if resp.User != nil {
		role = resp.User.Role
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s), token stored in %s\n", user, role, creds.Path())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
