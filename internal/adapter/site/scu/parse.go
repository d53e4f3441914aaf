package scu

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func parseDoc(text string) *html.Node {
	doc, _ := html.Parse(strings.NewReader(text))
	return doc
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
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

func rowCells(tr *html.Node) []string {
	tds := findAll(tr, "td")
	out := make([]string, 0, len(tds))
	for _, td := range tds {
		out = append(out, strings.Join(strings.Fields(nodeText(td)), " "))
	}
	return out
}

// parseVolumes reads the volume links off the problem index. They sit in the
// second row of the first table as "[N]" anchors.
func parseVolumes(body string) []string {
	tables := findAll(parseDoc(body), "table")
	if len(tables) == 0 {
		return nil
	}
	trs := findAll(tables[0], "tr")
	if len(trs) < 2 {
		return nil
	}
	var vols []string
	for _, a := range findAll(trs[1], "a") {
		if m := volumeRe.FindStringSubmatch(strings.TrimSpace(nodeText(a))); m != nil {
			vols = append(vols, m[1])
		}
	}
	return vols
}

// parseProblemIDs collects the numeric ids from a volume page. The first
// three rows are navigation and headers.
func parseProblemIDs(body string) []string {
	tables := findAll(parseDoc(body), "table")
	if len(tables) == 0 {
		return nil
	}
	var ids []string
	trs := findAll(tables[0], "tr")
	if len(trs) <= 3 {
		return nil
	}
	for _, tr := range trs[3:] {
		cells := rowCells(tr)
		if len(cells) < 2 {
			continue
		}
		if _, err := strconv.Atoi(cells[1]); err != nil {
			continue
		}
		ids = append(ids, cells[1])
	}
	return ids
}

// firstStatusRow returns the cells of the first data row on a solutions
// page. The status table is the second table on the page.
func firstStatusRow(body string) []string {
	tables := findAll(parseDoc(body), "table")
	if len(tables) < 2 {
		return nil
	}
	trs := findAll(tables[1], "tr")
	if len(trs) < 2 {
		return nil
	}
	return rowCells(trs[1])
}
