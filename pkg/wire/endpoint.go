package wire

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// scpLikeURL matches git's traditional "user@host:path" shorthand for SSH
// remotes (distinct from "ssh://user@host/path", which net/url parses directly).
var scpLikeURL = regexp.MustCompile(`^(?:([^@]+)@)?([^:/]+):(.+)$`)

// Endpoint is a parsed remote location: a network scheme ("git", "ssh") with
// host/port/path, or "file" for a local filesystem path.
type Endpoint struct {
	Scheme string
	User   string
	Host   string
	Port   string
	Path   string
}

var defaultPorts = map[string]string{
	"git": "9418",
	"ssh": "22",
}

// Address returns host:port, filling in the scheme's default port if none
// was given. Only meaningful for network schemes.
func (e Endpoint) Address() string {
	port := e.Port
	if port == "" {
		port = defaultPorts[e.Scheme]
	}
	return e.Host + ":" + port
}

// ParseEndpoint parses a remote URL in one of four forms:
//
//	git://host[:port]/path
//	ssh://[user@]host[:port]/path
//	[user@]host:path               (scp-like shorthand, implies ssh)
//	/local/filesystem/path          (implies "file")
func ParseEndpoint(raw string) (Endpoint, error) {
	if m := scpLikeURL.FindStringSubmatch(raw); m != nil && !looksAbsolute(raw) && !strings.Contains(raw, "://") {
		return Endpoint{Scheme: "ssh", User: m[1], Host: m[2], Path: m[3]}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return Endpoint{Scheme: "file", Path: raw}, nil
	}

	switch u.Scheme {
	case "git", "ssh":
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		path := u.Path
		if path == "" {
			return Endpoint{}, fmt.Errorf("wire: endpoint %q has no repository path", raw)
		}
		return Endpoint{Scheme: u.Scheme, User: user, Host: u.Hostname(), Port: u.Port(), Path: path}, nil
	case "file":
		return Endpoint{Scheme: "file", Path: u.Path}, nil
	default:
		return Endpoint{}, fmt.Errorf("wire: unsupported remote scheme %q", u.Scheme)
	}
}

func looksAbsolute(raw string) bool {
	return len(raw) > 0 && (raw[0] == '/' || raw[0] == '.')
}

// String reconstructs a human-readable form of the endpoint, mainly for
// error messages and config file round-tripping.
func (e Endpoint) String() string {
	if e.Scheme == "file" {
		return e.Path
	}
	host := e.Host
	if e.Port != "" {
		host += ":" + e.Port
	}
	if e.User != "" {
		host = e.User + "@" + host
	}
	return e.Scheme + "://" + host + e.Path
}
