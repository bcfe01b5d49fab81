package loader

import (
	"fmt"
	"io"
	"strings"

	"mercator-hq/luthien/pkg/policy"
)

// Node is the structural shape of a loaded policy.
type Node struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// When is the branch condition for children of a conditional, or
	// "default" for its fallback.
	When string `json:"when,omitempty"`

	Children []Node `json:"children,omitempty"`
}

// Describe returns the tree rooted at p.
func Describe(p policy.Policy) Node {
	inner := policy.Unwrap(p)
	n := Node{Name: inner.Name(), Type: inner.Type()}

	if c, ok := inner.(*policy.Conditional); ok {
		for _, b := range c.Branches() {
			child := Describe(b.Policy)
			child.When = b.When.String()
			n.Children = append(n.Children, child)
		}
		if d := c.Default(); d != nil {
			child := Describe(d)
			child.When = "default"
			n.Children = append(n.Children, child)
		}
		return n
	}

	if parent, ok := inner.(policy.Parent); ok {
		for _, child := range parent.Children() {
			n.Children = append(n.Children, Describe(child))
		}
	}
	return n
}

// Write prints the tree with two-space indentation per level.
func (n Node) Write(w io.Writer) error {
	return n.write(w, 0)
}

func (n Node) write(w io.Writer, depth int) error {
	line := fmt.Sprintf("%s%s (%s)", strings.Repeat("  ", depth), n.Name, n.Type)
	if n.When != "" {
		line += " when " + n.When
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.write(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// String renders the tree as Write does.
func (n Node) String() string {
	var b strings.Builder
	_ = n.Write(&b)
	return b.String()
}
