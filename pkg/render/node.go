package render

import (
	"strings"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// Escape replaces & < > " ' with their entity equivalents.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Attr is a single attribute. An empty Value renders as a boolean attribute.
type Attr struct {
	Name  string
	Value string
}

// Node is a UI node description. A node with an empty Tag is a fragment:
// its Text and Children are emitted without a wrapping element.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// El builds an element node.
func El(tag string, attrs []Attr, children ...*Node) *Node {
	return &Node{Tag: tag, Attrs: attrs, Children: children}
}

// Text builds a text node.
func Text(s string) *Node {
	return &Node{Text: s}
}

// Fragment groups nodes without a wrapper.
func Fragment(children ...*Node) *Node {
	return &Node{Children: children}
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Empty reports whether the node renders nothing.
func (n *Node) Empty() bool {
	return n == nil || (n.Tag == "" && n.Text == "" && len(n.Children) == 0)
}

// Markup serialises the tree. Text and attribute values are escaped.
func (n *Node) Markup() string {
	var b strings.Builder
	n.writeMarkup(&b)
	return b.String()
}

func (n *Node) writeMarkup(b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Tag != "" {
		b.WriteByte('<')
		b.WriteString(n.Tag)
		for _, a := range n.Attrs {
			b.WriteByte(' ')
			b.WriteString(a.Name)
			if a.Value != "" {
				b.WriteString(`="`)
				b.WriteString(Escape(a.Value))
				b.WriteByte('"')
			}
		}
		b.WriteByte('>')
	}
	b.WriteString(Escape(n.Text))
	for _, c := range n.Children {
		c.writeMarkup(b)
	}
	if n.Tag != "" {
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteByte('>')
	}
}

// PlainText concatenates the text of the tree without escaping.
func (n *Node) PlainText() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	if n == nil {
		return
	}
	b.WriteString(n.Text)
	for _, c := range n.Children {
		c.writeText(b)
	}
}

// Find returns the first node in depth-first order matching pred.
func (n *Node) Find(pred func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	if pred(n) {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(pred); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every node in depth-first order matching pred.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(x *Node) {
		if x == nil {
			return
		}
		if pred(x) {
			out = append(out, x)
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// HasAttr matches nodes carrying the named attribute.
func HasAttr(name string) func(*Node) bool {
	return func(n *Node) bool {
		_, ok := n.Attr(name)
		return ok
	}
}
