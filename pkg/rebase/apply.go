package rebase

import (
	"strings"

	"github.com/gitcore/gitcore/pkg/diff"
)

// applyRegion is one span of patched output, either clean text or a
// conflicting span carrying both the current (HEAD) and incoming
// (Entrante) text, mirroring pkg/diff's three-way conflict rendering.
type applyRegion struct {
	conflict bool
	head     string
	entrante string
}

func (r applyRegion) render() string {
	if !r.conflict {
		return r.head
	}
	return "<<<<<< HEAD\n" + r.head + "\n======\n" + r.entrante + "\n>>>>>> Entrante"
}

// applyPatch applies ops (a diff from the commit's parent to the commit,
// §4.4's LineDiff keyed to parent-line indices) onto currentText, which is
// expected to already equal the parent's content (the invariant a clean
// rebase maintains between picks). It returns the patched text and whether
// any conflict markers were emitted.
func applyPatch(currentText string, ops []diff.Op) (string, bool) {
	baseLines := splitLines(currentText)
	groups := make([][]diff.Op, len(baseLines)+1)
	for _, op := range ops {
		groups[op.BaseIndex] = append(groups[op.BaseIndex], op)
	}

	var regions []applyRegion
	hasConflict := false
	prevConflict := false

	if lead := groups[0]; len(lead) > 0 {
		var buf strings.Builder
		for _, op := range lead {
			buf.WriteString(op.Line)
			buf.WriteByte('\n')
		}
		regions = append(regions, applyRegion{head: buf.String()})
	}

	for i := 1; i <= len(baseLines); i++ {
		baseLine := baseLines[i-1]
		group := groups[i]

		var r applyRegion
		conflict := false
		switch {
		case len(group) == 0:
			if prevConflict {
				r = applyRegion{conflict: true, head: baseLine, entrante: baseLine}
				conflict = true
			} else {
				r = applyRegion{head: baseLine}
			}
		case len(group) == 1 && group[0].Kind == diff.Added:
			r = applyRegion{head: baseLine + "\n" + group[0].Line}
		case len(group) == 1 && group[0].Kind == diff.Removed:
			if group[0].Line == baseLine {
				r = applyRegion{head: ""}
			} else {
				conflict = true
				r = applyRegion{conflict: true, head: baseLine, entrante: group[0].Line}
			}
		case len(group) == 2 && hasKind(group, diff.Removed) && hasKind(group, diff.Added):
			removed := opOfKind(group, diff.Removed)
			added := opOfKind(group, diff.Added)
			if removed.Line == baseLine {
				r = applyRegion{head: added.Line}
			} else {
				conflict = true
				r = applyRegion{conflict: true, head: baseLine, entrante: added.Line}
			}
		default:
			conflict = true
			r = applyRegion{conflict: true, head: baseLine, entrante: joinAdded(group)}
		}

		if conflict {
			hasConflict = true
		}
		prevConflict = conflict
		regions = append(regions, r)
	}

	regions = coalesceApplyRegions(regions)

	var buf strings.Builder
	for _, r := range regions {
		buf.WriteString(r.render())
		buf.WriteByte('\n')
	}
	return buf.String(), hasConflict
}

func hasKind(group []diff.Op, k diff.OpKind) bool {
	for _, op := range group {
		if op.Kind == k {
			return true
		}
	}
	return false
}

func opOfKind(group []diff.Op, k diff.OpKind) diff.Op {
	for _, op := range group {
		if op.Kind == k {
			return op
		}
	}
	return diff.Op{}
}

func joinAdded(group []diff.Op) string {
	var parts []string
	for _, op := range group {
		if op.Kind == diff.Added {
			parts = append(parts, op.Line)
		}
	}
	return strings.Join(parts, "\n")
}

// coalesceApplyRegions merges adjacent conflict regions into one, matching
// pkg/diff's three-way merge coalescing behavior.
func coalesceApplyRegions(in []applyRegion) []applyRegion {
	var out []applyRegion
	i := 0
	for i < len(in) {
		if !in[i].conflict {
			out = append(out, in[i])
			i++
			continue
		}
		j := i
		var head, entrante []string
		for j < len(in) && in[j].conflict {
			if in[j].head != "" {
				head = append(head, strings.TrimSpace(in[j].head))
			}
			if in[j].entrante != "" {
				entrante = append(entrante, strings.TrimSpace(in[j].entrante))
			}
			j++
		}
		out = append(out, applyRegion{conflict: true, head: strings.Join(head, "\n"), entrante: strings.Join(entrante, "\n")})
		i = j
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
