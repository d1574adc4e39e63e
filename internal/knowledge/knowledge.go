package knowledge

import (
	"fmt"
	"strings"
	"sync"
)

// KnowledgeBase renders the reference text once and serves it from then on.
// It has no other state.
type KnowledgeBase struct {
	once    sync.Once
	summary string
}

// New returns a KnowledgeBase.
func New() *KnowledgeBase { return &KnowledgeBase{} }

// Summary returns plain text describing supported shapes, how to create
// them, physics scenarios and available math helpers.
func (kb *KnowledgeBase) Summary() string {
	kb.once.Do(func() { kb.summary = buildSummary() })
	return kb.summary
}

func buildSummary() string {
	var b strings.Builder

	names := make([]string, len(Shapes))
	for i, s := range Shapes {
		names[i] = string(s)
	}
	fmt.Fprintf(&b, "Supported shapes: %s.\n\n", strings.Join(names, ", "))

	b.WriteString("Creation snippets (three.js):\n")
	for _, s := range Shapes {
		fmt.Fprintf(&b, "- %s: %s\n", s, Snippet(s))
	}

	b.WriteString("\nWhen to use:\n")
	for _, s := range Shapes {
		fmt.Fprintf(&b, "- %s: %s\n", s, Usage(s))
	}

	b.WriteString("\nPhysics scenarios:\n")
	for _, sc := range Scenarios {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", sc.Name, sc.Formula, sc.Hint)
	}
	fmt.Fprintf(&b, "Use g = %.2f m/s^2 and derive motion from the frame index: t = frame / fps.\n", Gravity)

	b.WriteString("\nMathematics available: vector math, geometry, trigonometry, calculus, statistics, randomization with a fixed seed.\n")
	return b.String()
}
