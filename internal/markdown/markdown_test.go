package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer() *Renderer {
	return New("https://raw.githubusercontent.com/", "https://github.com")
}

var latte = Source{Owner: "octocat", Repo: "latte", Branch: "master"}

func TestRender_ResolvesRelativeImages(t *testing.T) {
	r := newTestRenderer()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "plain relative",
			src:  "![logo](docs/logo.png)",
			want: `src="https://raw.githubusercontent.com/octocat/latte/master/docs/logo.png"`,
		},
		{
			name: "dot slash",
			src:  "![logo](./img/cup.svg)",
			want: `src="https://raw.githubusercontent.com/octocat/latte/master/img/cup.svg"`,
		},
		{
			name: "root relative",
			src:  "![logo](/assets/beans.png)",
			want: `src="https://raw.githubusercontent.com/octocat/latte/master/assets/beans.png"`,
		},
		{
			name: "absolute untouched",
			src:  "![badge](https://img.shields.io/badge/brew-hot-brown)",
			want: `src="https://img.shields.io/badge/brew-hot-brown"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(tt.src, latte)
			require.NoError(t, err)
			assert.Contains(t, string(out), tt.want)
		})
	}
}

func TestRender_ResolvesRelativeLinks(t *testing.T) {
	r := newTestRenderer()

	out, err := r.Render("[guide](CONTRIBUTING.md) [top](#install) [mail](mailto:a@b.c)", latte)
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, `href="https://github.com/octocat/latte/blob/master/CONTRIBUTING.md"`)
	assert.Contains(t, html, `href="#install"`)
	assert.Contains(t, html, `href="mailto:a@b.c"`)
}

func TestRender_BranchMatters(t *testing.T) {
	r := newTestRenderer()
	out, err := r.Render("![x](x.png)", Source{Owner: "octocat", Repo: "latte", Branch: "main"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "/octocat/latte/main/x.png")
}

func TestRender_DropsRawHTML(t *testing.T) {
	r := newTestRenderer()
	out, err := r.Render("# Hi\n\n<script>alert(1)</script>\n", latte)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "<script>")
	assert.True(t, strings.Contains(string(out), "<h1"), "headings still render")
}

func TestRender_GFMTable(t *testing.T) {
	r := newTestRenderer()
	out, err := r.Render("| bean | roast |\n|---|---|\n| arabica | light |\n", latte)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<table>")
}

func TestRender_WithoutSourceLeavesPaths(t *testing.T) {
	r := newTestRenderer()
	out, err := r.Render("![x](x.png)", Source{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `src="x.png"`)
}
