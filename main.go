/*
minftp is a small two-channel file transfer service. A text control
connection carries line-oriented commands and status replies, while every
listing and file payload travels over its own short-lived data connection
announced in-band by the server.

The program operates in three modes:

1. Server Mode: serves a single managed directory to any number of
concurrent sessions and optionally advertises itself over mDNS

2. Client Mode: an interactive shell issuing LS, GET, PUT and EXIT

3. Discover Mode: browses the local network for advertised servers
*/
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/client"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/discovery"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/logging"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "minftp",
		Short:        "Two-channel file transfer server and client",
		SilenceUsage: true,
	}

	root.AddCommand(newServerCommand(), newClientCommand(), newDiscoverCommand())
	return root
}

func newServerCommand() *cobra.Command {
	cfg := config.Default()
	cfg.IsServer = true
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve a directory to clients",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return prepare(cmd.Flags(), cfg, configPath, "server", os.Stdout)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := server.Run(cfg); err != nil {
				logging.LogError(nil, err, "server")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file; flags take precedence")
	cfg.BindFlags(cmd.Flags(), true)
	return cmd
}

func newClientCommand() *cobra.Command {
	cfg := config.Default()
	var configPath string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a server and start an interactive session",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			// the console belongs to the prompt, so client logs go to file only
			return prepare(cmd.Flags(), cfg, configPath, "client", nil)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := client.Run(cfg); err != nil {
				logging.LogError(nil, err, "client")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file; flags take precedence")
	cfg.BindFlags(cmd.Flags(), false)
	return cmd
}

func newDiscoverCommand() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List servers advertised on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoints, err := discovery.Browse(cmd.Context(), wait)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(endpoints) == 0 {
				fmt.Fprintln(out, "No servers found")
				return nil
			}
			for _, ep := range endpoints {
				fmt.Fprintf(out, "%s\t%s\n", ep.Instance, ep.Address())
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to listen for announcements")
	return cmd
}

// prepare layers the optional config file under the command-line flags,
// validates the result and starts logging
func prepare(fs *pflag.FlagSet, cfg *config.Config, configPath, name string, console io.Writer) error {
	if configPath != "" {
		// keys in the file overwrite flag values, so explicit flags are replayed on top
		changed := map[string]string{}
		fs.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})

		if err := cfg.LoadFile(configPath); err != nil {
			return err
		}

		for flagName, value := range changed {
			if err := fs.Set(flagName, value); err != nil {
				return fmt.Errorf("reapply flag --%s: %w", flagName, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logging.SetupLogger(cfg.LogDir, name, cfg.Verbose, console); err != nil {
		slog.Error("Failed to setup logging", "error", err)
		return err
	}

	logging.LogConfig(cfg)
	return nil
}
