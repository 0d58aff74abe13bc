package searchexec

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var strippedTags = map[atom.Atom]bool{
	atom.Head:   true,
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Header: true,
	atom.Footer: true,
	atom.Aside:  true,
}

// StripBoilerplate parses html and re-renders its text content after
// dropping head/script/style/nav/header/footer/aside and SVG bodies; what
// the html result type returns.
func StripBoilerplate(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	var b strings.Builder
	walkText(doc, &b, false)
	return collapseBlankLines(b.String())
}

// HTMLToMarkdown converts rawHTML to a Markdown approximation: headings
// become `#`-prefixed lines, paragraphs and list items become their own
// lines, links become `[text](href)`, and script/style are skipped
// entirely; `<svg>` is replaced with the literal marker `[Svg Image]`.
func HTMLToMarkdown(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	var b strings.Builder
	renderMarkdown(doc, &b)
	return collapseBlankLines(b.String())
}

func walkText(n *html.Node, b *strings.Builder, inSkip bool) {
	skip := inSkip
	if n.Type == html.ElementNode && strippedTags[n.DataAtom] {
		skip = true
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Svg {
		return
	}
	if n.Type == html.TextNode && !skip {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b, skip)
	}
	if n.Type == html.ElementNode && isBlockTag(n.DataAtom) {
		b.WriteString("\n")
	}
}

func isBlockTag(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Br, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Tr:
		return true
	default:
		return false
	}
}

func renderMarkdown(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return
		case atom.Svg:
			b.WriteString("[Svg Image]")
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.DataAtom - atom.H1 + 1)
			b.WriteString("\n" + strings.Repeat("#", level) + " ")
			renderChildren(n, b)
			b.WriteString("\n")
			return
		case atom.Li:
			b.WriteString("\n- ")
			renderChildren(n, b)
			return
		case atom.A:
			href := attr(n, "href")
			var text strings.Builder
			renderChildren(n, &text)
			if href != "" {
				b.WriteString("[" + text.String() + "](" + href + ")")
			} else {
				b.WriteString(text.String())
			}
			return
		case atom.P, atom.Div, atom.Br, atom.Tr:
			renderChildren(n, b)
			b.WriteString("\n")
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	renderChildren(n, b)
}

func renderChildren(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderMarkdown(c, b)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
