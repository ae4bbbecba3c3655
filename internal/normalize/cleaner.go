// Package normalize turns fetched program pages into prompt-ready text.
package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// strippedTags never contribute text.
var strippedTags = []string{
	"script", "style", "meta", "link", "header", "footer",
	"nav", "aside", "noscript", "template", "iframe", "svg",
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"ul": true, "ol": true, "table": true, "thead": true, "tbody": true,
	"tr": true, "form": true, "blockquote": true, "pre": true, "dl": true,
	"dt": true, "dd": true, "figure": true, "figcaption": true, "address": true,
	"details": true, "summary": true, "hr": true,
}

var headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// Clean strips non-content markup and renders the page body as light
// markdown. Malformed markup is parsed leniently and never fails; only a read
// error is returned.
func Clean(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strings.Join(strippedTags, ",")).Remove()

	root := doc.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body.First()
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		render(&b, n)
	}
	return tidy(b.String()), nil
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		b.WriteString(collapse(n.Data))
		return
	case html.ElementNode:
	default:
		renderChildren(b, n)
		return
	}

	tag := n.Data
	if level, ok := headingLevels[tag]; ok {
		b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
		renderChildren(b, n)
		b.WriteString("\n\n")
		return
	}
	switch tag {
	case "br":
		b.WriteString("\n")
	case "img":
	case "li":
		b.WriteString("\n- ")
		renderChildren(b, n)
		b.WriteString("\n")
	case "td", "th":
		renderChildren(b, n)
		b.WriteString(" | ")
	case "a":
		var inner strings.Builder
		renderChildren(&inner, n)
		text := strings.TrimSpace(collapse(inner.String()))
		href := attr(n, "href")
		if text != "" && href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			fmt.Fprintf(b, "[%s](%s)", text, href)
		} else {
			b.WriteString(inner.String())
		}
	default:
		if blockTags[tag] {
			b.WriteString("\n")
			renderChildren(b, n)
			b.WriteString("\n")
			return
		}
		renderChildren(b, n)
	}
}

func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// collapse folds whitespace runs into single spaces without trimming the ends,
// so adjacent inline nodes keep their separation.
func collapse(s string) string {
	if s == "" {
		return s
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return " "
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f'
}

// tidy trims every line, drops marker-only lines and keeps at most one blank
// line between paragraphs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.TrimSuffix(line, " |")
		if line == "-" || line == "|" || strings.Trim(line, "#") == "" {
			line = ""
		}
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
