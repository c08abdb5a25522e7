// Package remote implements the client side of the wire protocol: dialing a
// remote endpoint and running the upload-pack/receive-pack negotiation that
// pkg/server serves, to support clone/fetch/push.
package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/gitcore/gitcore/pkg/pktline"
	"github.com/gitcore/gitcore/pkg/wire"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrLocalEndpoint is returned by dial for a "file" scheme endpoint: callers
// should read/write the target repository's object store directly instead
// of going over a wire connection.
var ErrLocalEndpoint = errors.New("remote: endpoint is local, no dial needed")

// conn pairs a transport's reader/writer with however it needs to be torn
// down (closing a net.Conn, closing an ssh.Session plus its ssh.Client).
type conn struct {
	r  *bufio.Reader
	w  *bufio.Writer
	wc io.Closer
}

func (c *conn) Close() error {
	if c.wc == nil {
		return nil
	}
	return c.wc.Close()
}

// dial opens a transport connection to ep for the given verb, leaving the
// upload-pack/receive-pack negotiation that follows to the caller. The TCP
// transport still needs a request line ("<verb> <repo>\0host=<host>..."),
// which dialTCP writes before returning; the SSH transport instead encodes
// verb and repo into the SSH command itself (see dialSSH).
func dial(ep wire.Endpoint, verb string) (*conn, error) {
	switch ep.Scheme {
	case "git":
		return dialTCP(ep, verb)
	case "ssh":
		return dialSSH(ep, verb)
	case "file":
		return nil, ErrLocalEndpoint
	default:
		return nil, fmt.Errorf("remote: unsupported scheme %q", ep.Scheme)
	}
}

func dialTCP(ep wire.Endpoint, verb string) (*conn, error) {
	nc, err := net.Dial("tcp", ep.Address())
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", ep.Address(), err)
	}
	r := bufio.NewReader(nc)
	w := bufio.NewWriter(nc)
	if err := writeRequestLine(w, verb, ep); err != nil {
		nc.Close()
		return nil, err
	}
	return &conn{r: r, w: w, wc: nc}, nil
}

// sshConnCloser closes both the spawned session and the underlying client,
// since closing only the session would leak the TCP connection.
type sshConnCloser struct {
	session *gossh.Session
	client  *gossh.Client
}

func (c *sshConnCloser) Close() error {
	_ = c.session.Close()
	return c.client.Close()
}

func dialSSH(ep wire.Endpoint, verb string) (*conn, error) {
	user := ep.User
	if user == "" {
		user = os.Getenv("USER")
	}

	hostKeyCallback, err := sshHostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("remote: ssh host key verification: %w", err)
	}

	signers, err := sshAuthSigners()
	if err != nil {
		return nil, fmt.Errorf("remote: ssh auth: %w", err)
	}

	config := &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signers...)},
		HostKeyCallback: hostKeyCallback,
	}

	client, err := gossh.Dial("tcp", ep.Address(), config)
	if err != nil {
		return nil, fmt.Errorf("remote: ssh dial %s: %w", ep.Address(), err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("remote: ssh session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("remote: ssh stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("remote: ssh stdout: %w", err)
	}

	command := fmt.Sprintf("%s '%s'", gitVerbCommand(verb), ep.Path)
	if err := session.Start(command); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("remote: ssh start %q: %w", command, err)
	}

	// Unlike the TCP transport, no request line is written here: the verb
	// and repository path already traveled in the SSH command string above,
	// which cmd/gitcore's serve-ssh session handler parses directly and
	// passes straight to RepoServer.Dispatch — writing one would desync the
	// stream, landing in the first ReadWants/ReadRefUpdates call instead.
	w := bufio.NewWriter(stdin)
	r := bufio.NewReader(stdout)
	return &conn{r: r, w: w, wc: &sshConnCloser{session: session, client: client}}, nil
}

// gitVerbCommand mirrors the ssh:// remote-command convention other Git
// implementations use ("git-upload-pack", "git-receive-pack"): pkg/server's
// SSH handler (cmd/gitcore's serve-ssh command) accepts either that prefixed
// form or the bare verb.
func gitVerbCommand(verb string) string {
	return "git-" + verb
}

func writeRequestLine(w *bufio.Writer, verb string, ep wire.Endpoint) error {
	line := fmt.Sprintf("%s %s\x00host=%s\x00\x00version=1\x00\n", verb, ep.Path, ep.Host)
	if err := pktline.WriteString(w, line); err != nil {
		return err
	}
	return w.Flush()
}

func sshHostKeyCallback() (gossh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return gossh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(path)
}

func sshAuthSigners() ([]gossh.Signer, error) {
	var signers []gossh.Signer

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		agentConn, err := net.Dial("unix", sock)
		if err == nil {
			if s, err := agent.NewClient(agentConn).Signers(); err == nil {
				signers = append(signers, s...)
			}
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
			if err != nil {
				continue
			}
			signer, err := gossh.ParsePrivateKey(data)
			if err != nil {
				continue
			}
			signers = append(signers, signer)
		}
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("no SSH keys available (checked ssh-agent and ~/.ssh)")
	}
	return signers, nil
}
