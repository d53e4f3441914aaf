package hdu

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

func parseHTML(text string) *html.Node {
	// html.Parse only fails on reader errors; strings never do.
	doc, _ := html.Parse(strings.NewReader(text))
	return doc
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && pred(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	all := findAll(n, pred)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func isTag(name string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == name }
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return b.String()
}

// renderNode returns the full HTML of a node, used for regex scans over
// candidate tables the way the original matched against str(tag).
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// innerHTML renders the children of a node.
func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// findTableMatching scans tables last-to-first for one whose rendered HTML
// matches re; the interesting tables sit at the bottom of HDU pages.
func findTableMatching(doc *html.Node, re *regexp.Regexp) *html.Node {
	tables := findAll(doc, isTag("table"))
	for i := len(tables) - 1; i >= 0; i-- {
		if re.MatchString(renderNode(tables[i])) {
			return tables[i]
		}
	}
	return nil
}

// centerRows returns the tr children rendered with align="center", which is
// how HDU marks data rows in its status and listing tables.
func centerRows(table *html.Node) []*html.Node {
	return findAll(table, func(n *html.Node) bool {
		return n.Data == "tr" && attrVal(n, "align") == "center"
	})
}

func rowCells(tr *html.Node) []string {
	tds := findAll(tr, isTag("td"))
	out := make([]string, 0, len(tds))
	for _, td := range tds {
		out = append(out, strings.TrimSpace(nodeText(td)))
	}
	return out
}
