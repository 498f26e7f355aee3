// Package prompt builds model prompts from an immutable node tree and renders
// them deterministically. The same tree always renders to the same string, so
// prompts can be cached, diffed, and asserted on in tests.
package prompt

import (
	"sort"
	"strings"
)

// Node is one element of a prompt tree. Nodes are immutable once built.
type Node interface {
	render(b *strings.Builder, depth int)
}

type textNode struct {
	text string
}

type sectionNode struct {
	title    string
	children []Node
}

type tagNode struct {
	name     string
	attrs    map[string]string
	children []Node
}

// Text is a literal block of prompt text.
func Text(s string) Node {
	return textNode{text: s}
}

// Section groups children under a markdown-style heading.
func Section(title string, children ...Node) Node {
	return sectionNode{title: title, children: append([]Node(nil), children...)}
}

// Tag wraps children in an XML-style tag. Attributes render in sorted key
// order so the output stays deterministic.
func Tag(name string, attrs map[string]string, children ...Node) Node {
	var copied map[string]string
	if len(attrs) > 0 {
		copied = make(map[string]string, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
	}
	return tagNode{name: name, attrs: copied, children: append([]Node(nil), children...)}
}

// Lines joins each string as its own text node.
func Lines(lines ...string) Node {
	return Text(strings.Join(lines, "\n"))
}

// Render flattens a prompt tree into its final string. Sibling blocks are
// separated by blank lines; nothing else about the input is reordered.
func Render(nodes ...Node) string {
	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		n.render(&b, 0)
	}
	return b.String()
}

func (n textNode) render(b *strings.Builder, _ int) {
	b.WriteString(strings.TrimRight(n.text, "\n"))
}

func (n sectionNode) render(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("#", depth+1))
	b.WriteByte(' ')
	b.WriteString(n.title)
	for _, child := range n.children {
		b.WriteString("\n\n")
		if s, ok := child.(sectionNode); ok {
			s.render(b, depth+1)
			continue
		}
		child.render(b, depth)
	}
}

func (n tagNode) render(b *strings.Builder, depth int) {
	b.WriteByte('<')
	b.WriteString(n.name)
	keys := make([]string, 0, len(n.attrs))
	for k := range n.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(n.attrs[k])
		b.WriteByte('"')
	}
	b.WriteByte('>')
	for _, child := range n.children {
		b.WriteByte('\n')
		child.render(b, depth)
	}
	b.WriteString("\n</")
	b.WriteString(n.name)
	b.WriteByte('>')
}
