// ABOUTME: Structure of the assembled Markdown body read from the goldmark AST.
// ABOUTME: Counts the headings, links and tables that actually made it into the article.
package article

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// bodyShape counts block and inline nodes in a Markdown body.
type bodyShape struct {
	H2, H3 int
	Links  int
	Tables int
}

func shapeOf(body string) bodyShape {
	var s bodyShape
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader([]byte(body)))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			switch n.Level {
			case 2:
				s.H2++
			case 3:
				s.H3++
			}
		case *ast.Link, *ast.AutoLink:
			s.Links++
		case *extast.Table:
			s.Tables++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return s
}
