package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/gitcore/gitcore/internal/gitlog"
	"github.com/gitcore/gitcore/pkg/httpapi"
	"github.com/gitcore/gitcore/pkg/reposync"
	"github.com/gitcore/gitcore/pkg/server"
	"github.com/spf13/cobra"
)

// daemonConfig is the TOML-parsed shape of the gitcore serve config file:
//
//	root = "/srv/repos"
//	tcp_listen = "0.0.0.0:9418"
//	http_listen = "0.0.0.0:8080"
//	ssh_listen = "0.0.0.0:2222"   # optional; omit to disable the SSH transport
//	ssh_host_key = "/etc/gitcore/ssh_host_ed25519_key"
type daemonConfig struct {
	Root       string `toml:"root"`
	TCPListen  string `toml:"tcp_listen"`
	HTTPListen string `toml:"http_listen"`
	SSHListen  string `toml:"ssh_listen"`
	SSHHostKey string `toml:"ssh_host_key"`
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := daemonConfig{TCPListen: "0.0.0.0:9418", HTTPListen: "0.0.0.0:8080"}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var configPath string
	var root string
	var sshListen string
	var sshHostKey string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP wire-protocol server, SSH transport, and HTTP pull request API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDaemonConfig(configPath)
			if err != nil {
				return err
			}
			if root != "" {
				cfg.Root = root
			}
			if sshListen != "" {
				cfg.SSHListen = sshListen
			}
			if sshHostKey != "" {
				cfg.SSHHostKey = sshHostKey
			}
			if cfg.Root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				cfg.Root = wd
			}

			log := gitlog.New(gitlog.Config{Output: os.Stderr})
			defer log.Close()
			locks := reposync.NewRegistry()

			srv := server.New(cfg.Root, log, locks)
			api := httpapi.NewAPI(cfg.Root, log, locks, nil)

			errCh := make(chan error, 3)
			go func() {
				log.Infof("wire protocol server listening on %s", cfg.TCPListen)
				errCh <- srv.ListenAndServe(cfg.TCPListen)
			}()
			go func() {
				log.Infof("pull request API listening on %s", cfg.HTTPListen)
				errCh <- http.ListenAndServe(cfg.HTTPListen, api)
			}()
			if cfg.SSHListen != "" {
				go func() {
					log.Infof("ssh wire protocol server listening on %s", cfg.SSHListen)
					errCh <- serveSSH(srv, log, cfg.SSHListen, cfg.SSHHostKey)
				}()
			}

			return <-errCh
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML daemon config file")
	cmd.Flags().StringVar(&root, "root", "", "repository root directory (overrides config)")
	cmd.Flags().StringVar(&sshListen, "ssh-listen", "", "SSH listen address (overrides config; empty disables SSH)")
	cmd.Flags().StringVar(&sshHostKey, "ssh-host-key", "", "path to a PEM-encoded SSH host private key (overrides config)")
	return cmd
}
