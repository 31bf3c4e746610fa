package firmware

import (
	"fmt"
	"strings"
)

const (
	markerPrefix = "// @ardubridge:"
	markerBegin  = markerPrefix + "begin "
	markerEnd    = markerPrefix + "end"
)

func writeSection(b *strings.Builder, f Fragment, content string) {
	b.WriteString(markerBegin)
	b.WriteString(string(f.Slot))
	b.WriteString(" ")
	b.WriteString(f.Owner)
	if f.Name != "" {
		b.WriteString(" ")
		b.WriteString(f.Name)
	}
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString("\n")
	b.WriteString(markerEnd)
	b.WriteString("\n")
}

// ParseSections recovers the device fragments from a rendered sketch in the
// order they appear. Method fragments are returned without the routine
// wrapper the renderer adds.
func ParseSections(text string) ([]Fragment, error) {
	var (
		frags []Fragment
		cur   *Fragment
		body  []string
	)
	for n, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, markerBegin):
			if cur != nil {
				return nil, fmt.Errorf("line %d: section %s %s not closed", n+1, cur.Slot, cur.Owner)
			}
			fields := strings.Fields(strings.TrimPrefix(line, markerBegin))
			if len(fields) < 2 || len(fields) > 3 {
				return nil, fmt.Errorf("line %d: malformed section marker", n+1)
			}
			cur = &Fragment{Slot: Slot(fields[0]), Owner: fields[1]}
			if len(fields) == 3 {
				cur.Name = fields[2]
			}
			body = nil
		case line == markerEnd:
			if cur == nil {
				return nil, fmt.Errorf("line %d: unexpected section end", n+1)
			}
			if cur.Slot == SlotMethod {
				if len(body) < 2 {
					return nil, fmt.Errorf("line %d: malformed method section", n+1)
				}
				body = body[1 : len(body)-1]
			}
			cur.Body = strings.Join(body, "\n")
			frags = append(frags, *cur)
			cur = nil
		case cur != nil:
			body = append(body, line)
		}
	}
	if cur != nil {
		return nil, fmt.Errorf("section %s %s not closed", cur.Slot, cur.Owner)
	}
	return frags, nil
}
