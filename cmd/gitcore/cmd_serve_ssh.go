package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gitcore/gitcore/internal/gitlog"
	"github.com/gitcore/gitcore/pkg/server"
	gossh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"
)

// serveSSH runs an SSH transport for srv's repositories alongside the TCP
// and HTTP listeners newServeCmd starts, reusing the same RepoServer (and
// therefore the same per-repo mutex registry) instead of a second one.
func serveSSH(srv *server.RepoServer, log *gitlog.Logger, listen, hostKeyPath string) error {
	sshSrv := &gossh.Server{
		Addr: listen,
		Handler: func(sess gossh.Session) {
			handleSSHSession(srv, log, sess)
		},
		// This transport accepts any presented key: gitcore has no
		// identity/authorization model of its own (unlike the example
		// pack's DB-backed deploy-key servers), so access control is left
		// to whatever wraps this process (a bastion host,
		// AuthorizedKeysCommand, or network policy).
		PublicKeyHandler: func(ctx gossh.Context, key gossh.PublicKey) bool {
			return true
		},
	}

	if hostKeyPath != "" {
		if err := loadHostKey(sshSrv, hostKeyPath); err != nil {
			return err
		}
	}

	return sshSrv.ListenAndServe()
}

func loadHostKey(srv *gossh.Server, path string) error {
	signer, err := readHostKeySigner(path)
	if err != nil {
		return fmt.Errorf("load host key: %w", err)
	}
	srv.AddHostKey(signer)
	return nil
}

func readHostKeySigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}

// handleSSHSession parses the SSH command line the same way git's own
// ssh:// transport does — "<verb> '<repo>'" — and dispatches it onto the
// same per-repo-locked upload-pack/receive-pack path the TCP server uses.
func handleSSHSession(srv *server.RepoServer, log *gitlog.Logger, sess gossh.Session) {
	verb, repoName, err := parseSSHCommand(sess.Command())
	if err != nil {
		fmt.Fprintln(sess.Stderr(), err.Error())
		_ = sess.Exit(1)
		return
	}

	r := bufio.NewReader(sess)
	w := bufio.NewWriter(sess)
	if err := srv.Dispatch(r, w, verb, repoName); err != nil {
		log.Errorf("ssh %s %s: %v", verb, repoName, err)
		fmt.Fprintln(sess.Stderr(), err.Error())
		_ = sess.Exit(1)
		return
	}
	_ = w.Flush()
}

func parseSSHCommand(args []string) (verb, repo string, err error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("usage: <upload-pack|receive-pack> <repo>")
	}
	verb = strings.TrimPrefix(args[0], "git-")
	repo = strings.Trim(args[1], "'\"")
	if verb != "upload-pack" && verb != "receive-pack" {
		return "", "", fmt.Errorf("unknown verb %q", args[0])
	}
	return verb, repo, nil
}
