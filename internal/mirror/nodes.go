package mirror

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Tags Telegraph accepts in page content. Anything else is unwrapped
// into its children.
var allowedTags = map[string]bool{
	"a": true, "aside": true, "b": true, "blockquote": true, "br": true,
	"code": true, "em": true, "figcaption": true, "figure": true,
	"h3": true, "h4": true, "hr": true, "i": true, "iframe": true,
	"img": true, "li": true, "ol": true, "p": true, "pre": true,
	"s": true, "strong": true, "u": true, "ul": true, "video": true,
}

// Headings deeper than Telegraph supports collapse onto h3/h4.
var tagAliases = map[string]string{
	"h1": "h3", "h2": "h3", "h5": "h4", "h6": "h4", "div": "p",
}

// Attributes Telegraph keeps; everything else is dropped.
var allowedAttrs = map[string]bool{"href": true, "src": true}

// node is one Telegraph content node: plain text or a tagged element.
type node struct {
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}

// htmlToNodes converts an HTML fragment into the Telegraph node list.
func htmlToNodes(content string) ([]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	var nodes []any
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, convertSelection(s)...)
	})
	if nodes == nil {
		nodes = []any{content}
	}
	return nodes, nil
}

func convertSelection(s *goquery.Selection) []any {
	if len(s.Nodes) == 0 {
		return nil
	}
	return convertNode(s.Nodes[0])
}

func convertNode(n *html.Node) []any {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []any{n.Data}
	case html.ElementNode:
		tag := n.Data
		if alias, ok := tagAliases[tag]; ok {
			tag = alias
		}

		var children []any
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, convertNode(c)...)
		}

		if !allowedTags[tag] {
			return children
		}

		out := node{Tag: tag, Children: children}
		for _, attr := range n.Attr {
			if allowedAttrs[attr.Key] {
				if out.Attrs == nil {
					out.Attrs = make(map[string]string)
				}
				out.Attrs[attr.Key] = attr.Val
			}
		}
		return []any{out}
	default:
		return nil
	}
}
