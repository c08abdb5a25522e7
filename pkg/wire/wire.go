// Package wire implements the ref-discovery and upload-pack/receive-pack
// negotiation dialect that runs over pkg/pktline framing.
package wire

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/gitcore/gitcore/pkg/pktline"
)

// ZeroHash is the 40-zero placeholder used for an empty repository's HEAD
// advertisement and for "ref did not previously exist" push updates.
const ZeroHash = "0000000000000000000000000000000000000000"

// DefaultCapabilities are the capability strings this implementation
// advertises during discovery. Only "ofs-delta" changes codec behavior;
// the rest are accepted pass-through tokens.
var DefaultCapabilities = []string{"ofs-delta", "agent=gitcore/1.0"}

// RefAd is one advertised ref: a hash and a ref name (or "HEAD" for the
// symbolic pointer entry carrying capabilities).
type RefAd struct {
	Hash string
	Name string
}

// WriteDiscovery writes the version line, then one line per ref (the first
// carrying a NUL-separated capability list), then a flush packet. An empty
// refs slice is still preceded by a single placeholder HEAD ref at
// ZeroHash, matching an empty repository.
func WriteDiscovery(w *bufio.Writer, refs []RefAd, caps []string) error {
	if err := pktline.WriteString(w, "version 1\n"); err != nil {
		return err
	}

	if len(refs) == 0 {
		refs = []RefAd{{Hash: ZeroHash, Name: "HEAD"}}
	}

	for i, ref := range refs {
		line := fmt.Sprintf("%s %s", ref.Hash, ref.Name)
		if i == 0 {
			line += "\x00" + strings.Join(caps, " ")
		}
		if err := pktline.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	return w.Flush()
}

// ReadDiscovery parses a discovery stream previously written by
// WriteDiscovery.
func ReadDiscovery(r *bufio.Reader) (refs []RefAd, caps []string, err error) {
	versionLine, flush, err := pktline.Read(r)
	if err != nil {
		return nil, nil, err
	}
	if flush {
		return nil, nil, fmt.Errorf("wire: discovery: unexpected flush before version line")
	}
	if !strings.HasPrefix(string(versionLine), "version ") {
		return nil, nil, fmt.Errorf("wire: discovery: expected version line, got %q", versionLine)
	}

	first := true
	for {
		payload, flush, err := pktline.Read(r)
		if err != nil {
			return nil, nil, err
		}
		if flush {
			return refs, caps, nil
		}
		line := strings.TrimSuffix(string(payload), "\n")
		if first {
			if idx := strings.IndexByte(line, '\x00'); idx >= 0 {
				caps = strings.Fields(line[idx+1:])
				line = line[:idx]
			}
			first = false
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("wire: discovery: malformed ref line %q", line)
		}
		refs = append(refs, RefAd{Hash: parts[0], Name: parts[1]})
	}
}

// WriteWants writes the client's "want <hash>" lines (the first carrying
// capabilities) followed by a flush.
func WriteWants(w *bufio.Writer, wants []string, caps []string) error {
	for i, h := range wants {
		line := "want " + h
		if i == 0 && len(caps) > 0 {
			line += " " + strings.Join(caps, " ")
		}
		if err := pktline.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	return w.Flush()
}

// ReadWants reads "want <hash> [caps]" lines until a flush packet.
func ReadWants(r *bufio.Reader) (wants []string, caps []string, err error) {
	first := true
	for {
		payload, flush, err := pktline.Read(r)
		if err != nil {
			return nil, nil, err
		}
		if flush {
			return wants, caps, nil
		}
		line := strings.TrimSuffix(string(payload), "\n")
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "want" {
			return nil, nil, fmt.Errorf("wire: malformed want line %q", line)
		}
		wants = append(wants, fields[1])
		if first {
			caps = fields[2:]
			first = false
		}
	}
}

// WriteHaves writes "have <hash>" lines followed by a "done" line (not a
// flush — the upload-pack dialect terminates the have list with "done").
func WriteHaves(w *bufio.Writer, haves []string) error {
	for _, h := range haves {
		if err := pktline.WriteString(w, "have "+h+"\n"); err != nil {
			return err
		}
	}
	if err := pktline.WriteString(w, "done\n"); err != nil {
		return err
	}
	return w.Flush()
}

// ReadHaves reads "have <hash>" lines until a "done" line.
func ReadHaves(r *bufio.Reader) (haves []string, err error) {
	for {
		payload, flush, err := pktline.Read(r)
		if err != nil {
			return nil, err
		}
		if flush {
			return haves, nil
		}
		line := strings.TrimSuffix(string(payload), "\n")
		if line == "done" {
			return haves, nil
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "have" {
			return nil, fmt.Errorf("wire: malformed have line %q", line)
		}
		haves = append(haves, fields[1])
	}
}

// WriteAck writes the server's "ACK <hash>" response to a have negotiation.
func WriteAck(w *bufio.Writer, hash string) error {
	if err := pktline.WriteString(w, "ACK "+hash+"\n"); err != nil {
		return err
	}
	return w.Flush()
}

// WriteNak writes the server's "NAK" response when no have matched.
func WriteNak(w *bufio.Writer) error {
	if err := pktline.WriteString(w, "NAK\n"); err != nil {
		return err
	}
	return w.Flush()
}

// RefUpdate is one push-side ref update request: move Name from Old to New.
type RefUpdate struct {
	Old, New, Name string
}

// WriteRefUpdates writes the client's push ref-update lines followed by a
// flush. The packfile itself follows separately on the same stream.
func WriteRefUpdates(w *bufio.Writer, updates []RefUpdate) error {
	for _, u := range updates {
		line := fmt.Sprintf("%s %s %s", u.Old, u.New, u.Name)
		if err := pktline.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	return w.Flush()
}

// ReadRefUpdates reads push ref-update lines until a flush packet.
func ReadRefUpdates(r *bufio.Reader) ([]RefUpdate, error) {
	var updates []RefUpdate
	for {
		payload, flush, err := pktline.Read(r)
		if err != nil {
			return nil, err
		}
		if flush {
			return updates, nil
		}
		fields := strings.Fields(strings.TrimSuffix(string(payload), "\n"))
		if len(fields) != 3 {
			return nil, fmt.Errorf("wire: malformed ref-update line %q", payload)
		}
		updates = append(updates, RefUpdate{Old: fields[0], New: fields[1], Name: fields[2]})
	}
}

// WriteErr writes an "ERR <msg>" pkt-line, used by RepoServer to propagate
// a failure back to the client in place of a normal response.
func WriteErr(w *bufio.Writer, msg string) error {
	if err := pktline.WriteString(w, "ERR "+msg+"\n"); err != nil {
		return err
	}
	return w.Flush()
}
