// Package extract contains tests for the text-scan extractor.
package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageExtractsTitleAndText(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>  Hello
		World </title><style>body { color: red }</style></head>
		<body><script>var x = "<p>not content</p>";</script>
		<h1>Heading</h1><p>First paragraph.</p></body></html>`

	got := Page(body, 0)
	require.NotNil(t, got.Title)
	require.Equal(t, "Hello World", *got.Title)
	require.Equal(t, "Heading First paragraph.", got.Text)
}

func TestPageWithoutTitle(t *testing.T) {
	t.Parallel()

	got := Page(`<body><p>content only</p></body>`, 0)
	require.Nil(t, got.Title)
	require.Equal(t, "content only", got.Text)
}

func TestPageEmptyTitleTagIsNil(t *testing.T) {
	t.Parallel()

	got := Page(`<title>   </title><p>x</p>`, 0)
	require.Nil(t, got.Title)
}

func TestTextStripsScriptAndStyleWholesale(t *testing.T) {
	t.Parallel()

	body := `<script type="text/javascript">
		document.write("<b>injected</b>");
	</script><style media="all">.a{..}</style>visible`
	require.Equal(t, "visible", Text(body, 0))
}

func TestTextEmptyAfterStripping(t *testing.T) {
	t.Parallel()

	require.Empty(t, Text(`<script>only()</script><style>.x{}</style>`, 0))
	require.Empty(t, Text("", 0))
}

func TestTextCapsLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 100)
	got := Text("<p>"+long+"</p>", 20)
	require.LessOrEqual(t, len([]rune(got)), 20)
	require.Equal(t, strings.TrimSpace(got), got)
}

func TestExcerptShortTextUnchanged(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", Excerpt("short", 50))
	require.Equal(t, "abc", Excerpt("abcdef", 3))
}
