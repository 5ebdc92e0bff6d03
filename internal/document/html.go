package document

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLExtractor HTML文档提取器
// 标题转换为Markdown标题，段落、列表项和表格行各占一行
type HTMLExtractor struct{}

// NewHTMLExtractor 创建新的HTML提取器
func NewHTMLExtractor() Extractor {
	return &HTMLExtractor{}
}

// headingDepth h1..h6对应的标题深度
var headingDepth = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3,
	atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Extract 解析HTML并输出Markdown
func (e *HTMLExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	w := &blockWriter{}
	w.walk(doc)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return w.String(), nil
}

// blockWriter 按块级元素收集输出，块之间以空行分隔
type blockWriter struct {
	blocks []string
}

func (w *blockWriter) add(block string) {
	block = strings.TrimSpace(block)
	if block != "" {
		w.blocks = append(w.blocks, block)
	}
}

func (w *blockWriter) String() string {
	return strings.Join(w.blocks, "\n\n")
}

func (w *blockWriter) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			if text := inlineText(n); text != "" {
				w.add(strings.Repeat("#", headingDepth[n.DataAtom]) + " " + text)
			}
			return
		case atom.P, atom.Pre, atom.Blockquote, atom.Dt, atom.Dd, atom.Caption:
			w.add(inlineText(n))
			return
		case atom.Li:
			if text := inlineText(n); text != "" {
				w.add(listMarker(n) + text)
			}
			return
		case atom.Span, atom.A, atom.Strong, atom.Em, atom.B, atom.I, atom.U, atom.Code:
			if hasBlockParent(n) {
				w.add(inlineText(n))
				return
			}
		case atom.Tr:
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, inlineText(c))
				}
			}
			if len(cells) > 0 {
				w.add("| " + strings.Join(cells, " | ") + " |")
			}
			return
		}
	}

	if n.Type == html.TextNode && hasBlockParent(n) {
		// 直接挂在容器元素下的零散文本
		w.add(collapseSpace(n.Data))
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// listMarker 有序列表使用序号，其余使用短横线
func listMarker(li *html.Node) string {
	if li.Parent == nil || li.Parent.DataAtom != atom.Ol {
		return "- "
	}
	idx := 1
	for s := li.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Li {
			idx++
		}
	}
	return fmt.Sprintf("%d. ", idx)
}

// hasBlockParent 文本节点是否位于body或div等容器中
func hasBlockParent(n *html.Node) bool {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return false
	}
	switch n.Parent.DataAtom {
	case atom.Body, atom.Div, atom.Section, atom.Article, atom.Main, atom.Td, atom.Th:
		return true
	}
	return false
}

// inlineText 收集元素下的全部文本，<br>换行，其余空白折叠
func inlineText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteString("\n")
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
