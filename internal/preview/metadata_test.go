package preview

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractMetadata_PriorityOrder(t *testing.T) {
	page := `<!doctype html><html><head>
<title>  Spier   Wine Farm </title>
<meta property="og:title" content="Spier Wine Farm | Stellenbosch">
<meta property="og:description" content="A historic wine farm on the Eerste River.">
<meta name="description" content="Fallback description">
<meta property="og:image" content="/media/hero.jpg">
<meta name="twitter:image" content="https://cdn.example.com/twitter.webp">
<meta property="og:image" content="https://example.com/assets/logo.png">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Winery","image":[{"@type":"ImageObject","url":"/uploads/cellar"}],"logo":"https://example.com/brand-logo.png"}
</script>
</head><body>
<img src="/images/inline.jpg">
<a href="https://www.instagram.com/spierwinefarm/">Instagram</a>
<a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
<a href="https://instagram.com/spierwinefarm">Again</a>
</body></html>`

	meta := ExtractMetadata([]byte(page), mustURL(t, "https://spier.co.za/"))

	assert.Equal(t, "Spier Wine Farm | Stellenbosch", meta.Title)
	assert.Equal(t, "A historic wine farm on the Eerste River.", meta.Description)
	assert.Equal(t, []string{
		"https://spier.co.za/media/hero.jpg",
		"https://cdn.example.com/twitter.webp",
		"https://spier.co.za/uploads/cellar",
	}, meta.Images, "logos dropped, inline image unused when metadata images exist")
	assert.Equal(t, []string{"https://www.instagram.com/spierwinefarm", "https://instagram.com/spierwinefarm"}, meta.SocialLinks)
}

func TestExtractMetadata_InlineFallback(t *testing.T) {
	page := `<html><head><title>Cafe</title><meta name="description" content="  Coffee   and cake "></head>
<body>
<img src="/img/favicon.ico">
<img src="data:image/gif;base64,AAAA" data-src="/wp-content/uploads/2024/01/counter.jpg">
<img src="/photos/second.jpg">
</body></html>`

	meta := ExtractMetadata([]byte(page), mustURL(t, "http://cafe.example/"))

	assert.Equal(t, "Cafe", meta.Title)
	assert.Equal(t, "Coffee and cake", meta.Description)
	assert.Equal(t, []string{"http://cafe.example/wp-content/uploads/2024/01/counter.jpg"}, meta.Images)
}

func TestExtractMetadata_NoImages(t *testing.T) {
	meta := ExtractMetadata([]byte(`<html><body><p>hello</p></body></html>`), mustURL(t, "https://a.example/"))
	assert.Empty(t, meta.Images)
	assert.Empty(t, meta.Title)
}

func TestJSONLDImages_Graph(t *testing.T) {
	raw := `{"@graph":[{"@type":"Place","photo":{"contentUrl":"https://x.example/a.jpg"}},{"@type":"Organization","image":"https://x.example/b.jpg"}]}`
	assert.ElementsMatch(t, []string{"https://x.example/a.jpg", "https://x.example/b.jpg"}, jsonLDImages(raw))
	assert.Nil(t, jsonLDImages(`{broken`))
}

func TestFirstSrcset(t *testing.T) {
	assert.Equal(t, "/a-480.jpg", firstSrcset("/a-480.jpg 480w, /a-800.jpg 800w"))
	assert.Equal(t, "", firstSrcset(""))
}
