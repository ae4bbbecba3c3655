package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const programPage = `<!DOCTYPE html>
<html>
<head>
  <title>BSc Computing</title>
  <meta name="description" content="ignored">
  <style>.x { color: red }</style>
  <script>var tracking = 1;</script>
</head>
<body>
  <header><a href="/">Home</a></header>
  <nav><ul><li>Menu item</li></ul></nav>
  <!-- build 1234 -->
  <main>
    <h1>Bachelor of Science in Computing</h1>
    <p>Offered   by the
       University of London.</p>
    <h2>Fees</h2>
    <ul>
      <li>Domestic: S$30,000</li>
      <li>International: <b>S$40,000</b></li>
    </ul>
    <p>See <a href="https://example.edu/apply">how to apply</a>.</p>
    <table><tr><td>Module</td><td>Credits</td></tr></table>
  </main>
  <aside>Related programmes</aside>
  <footer>Copyright</footer>
  <noscript>Enable JS</noscript>
</body>
</html>`

func TestCleanStripsChrome(t *testing.T) {
	t.Parallel()

	text, err := Clean([]byte(programPage))
	require.NoError(t, err)

	for _, gone := range []string{"tracking", "color", "Home", "Menu item", "build 1234", "Related", "Copyright", "Enable JS", "BSc Computing"} {
		require.NotContains(t, text, gone)
	}
	require.Contains(t, text, "# Bachelor of Science in Computing")
	require.Contains(t, text, "Offered by the University of London.")
	require.Contains(t, text, "## Fees")
	require.Contains(t, text, "- Domestic: S$30,000")
	require.Contains(t, text, "- International: S$40,000")
	require.Contains(t, text, "[how to apply](https://example.edu/apply)")
	require.Contains(t, text, "Module | Credits")
	require.NotContains(t, text, "\n\n\n")
}

func TestCleanToleratesMalformedHTML(t *testing.T) {
	t.Parallel()

	text, err := Clean([]byte("<div><p>Unclosed <b>bold <i>text</div></span>"))
	require.NoError(t, err)
	require.Equal(t, "Unclosed bold text", strings.TrimSpace(text))
}

func TestCleanEmptyPage(t *testing.T) {
	t.Parallel()

	text, err := Clean([]byte("<html><body><script>x()</script><nav>menu</nav></body></html>"))
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestCollapseKeepsInlineSpacing(t *testing.T) {
	t.Parallel()

	require.Equal(t, " a b ", collapse("\n a \t b\n"))
	require.Equal(t, " ", collapse("\n\n"))
	require.Equal(t, "", collapse(""))
}
