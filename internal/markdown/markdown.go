// Package markdown renders repository READMEs to HTML.
//
// Relative image and link targets in a README are relative to the file's
// location in the repository, which the page is not. They are rewritten to
// absolute URLs using the branch the README was found on: images point at raw
// content hosting, links at the repository's blob view.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Source locates a README inside its repository.
type Source struct {
	Owner  string
	Repo   string
	Branch string
}

// Renderer converts Markdown to sanitised HTML. Raw HTML in the source is
// dropped, not passed through.
type Renderer struct {
	md      goldmark.Markdown
	rawURL  string
	htmlURL string
}

var sourceKey = parser.NewContextKey()

// New builds a Renderer. rawURL is the raw-content host
// (https://raw.githubusercontent.com) and htmlURL the site host
// (https://github.com).
func New(rawURL, htmlURL string) *Renderer {
	r := &Renderer{
		rawURL:  strings.TrimRight(rawURL, "/"),
		htmlURL: strings.TrimRight(htmlURL, "/"),
	}
	r.md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(&resolver{r: r}, 100)),
		),
	)
	return r
}

// Render converts src, resolving relative references against s.
func (r *Renderer) Render(src string, s Source) (template.HTML, error) {
	ctx := parser.NewContext()
	ctx.Set(sourceKey, s)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf, parser.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("markdown: rendering: %w", err)
	}
	// goldmark escapes text and omits raw HTML, so the output is safe to embed.
	return template.HTML(buf.String()), nil
}

// ImageURL resolves a README-relative image path to raw content hosting.
func (r *Renderer) ImageURL(s Source, dest string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", r.rawURL, s.Owner, s.Repo, s.Branch, cleanRelative(dest))
}

// LinkURL resolves a README-relative link to the repository's blob view.
func (r *Renderer) LinkURL(s Source, dest string) string {
	return fmt.Sprintf("%s/%s/%s/blob/%s/%s", r.htmlURL, s.Owner, s.Repo, s.Branch, cleanRelative(dest))
}

type resolver struct {
	r *Renderer
}

func (t *resolver) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	s, ok := pc.Get(sourceKey).(Source)
	if !ok || s.Owner == "" || s.Repo == "" || s.Branch == "" {
		return
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			if isRelative(node.Destination) {
				node.Destination = []byte(t.r.ImageURL(s, string(node.Destination)))
			}
		case *ast.Link:
			if isRelative(node.Destination) {
				node.Destination = []byte(t.r.LinkURL(s, string(node.Destination)))
			}
		}
		return ast.WalkContinue, nil
	})
}

// isRelative reports whether dest is a repository path: not absolute, not
// protocol-relative, not an in-page anchor, and not another scheme (mailto:).
func isRelative(dest []byte) bool {
	d := string(dest)
	if d == "" || strings.HasPrefix(d, "#") || strings.HasPrefix(d, "//") {
		return false
	}
	u, err := url.Parse(d)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// cleanRelative turns "./docs/../img/logo.png" into "img/logo.png". Paths that
// start with "/" are relative to the repository root as well.
func cleanRelative(p string) string {
	cleaned := path.Clean("/" + p)
	return strings.TrimPrefix(cleaned, "/")
}
