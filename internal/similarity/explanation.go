package similarity

import (
	"strconv"
	"strings"
)

// Explanation is one node of a score breakdown.
type Explanation struct {
	Value       float32       `json:"value"`
	Description string        `json:"description"`
	Details     []Explanation `json:"details,omitempty"`
}

// Match returns an explanation node with the given children.
func Match(value float32, description string, details ...Explanation) Explanation {
	return Explanation{Value: value, Description: description, Details: details}
}

// String renders the tree, one node per line, children indented.
func (e Explanation) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e Explanation) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(formatFloat(e.Value))
	sb.WriteString(" = ")
	sb.WriteString(e.Description)
	sb.WriteByte('\n')
	for _, d := range e.Details {
		d.write(sb, depth+1)
	}
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
