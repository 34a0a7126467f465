package preview

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxInlineImages bounds how many <img> tags are inspected for the fallback.
const maxInlineImages = 25

// Metadata is what one page says about itself.
type Metadata struct {
	Title       string
	Description string
	// Images are absolute, plausible photo URLs in priority order:
	// og:image, twitter:image, JSON-LD, then the first plausible <img>.
	Images []string
	// SocialLinks are profile-shaped links found in anchors.
	SocialLinks []string
}

type metaCollector struct {
	base *url.URL

	title         string
	ogTitle       string
	ogDescription string
	description   string
	twitterDesc   string

	ogImages      []string
	twitterImages []string
	jsonLDImages  []string
	inlineImages  []string
	inlineSeen    int

	socialLinks []string
}

// ExtractMetadata extracts title, description, images and social links from an
// HTML document. base resolves relative URLs.
func ExtractMetadata(body []byte, base *url.URL) Metadata {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Metadata{}
	}

	c := &metaCollector{base: base}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			c.visit(n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return c.result()
}

func (c *metaCollector) visit(n *html.Node) {
	switch n.DataAtom {
	case atom.Title:
		if c.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			c.title = collapseSpace(n.FirstChild.Data)
		}
	case atom.Meta:
		c.visitMeta(n)
	case atom.Script:
		if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
			for _, img := range jsonLDImages(n.FirstChild.Data) {
				if abs := resolveReference(c.base, img); abs != "" {
					c.jsonLDImages = append(c.jsonLDImages, abs)
				}
			}
		}
	case atom.Img:
		if c.inlineSeen >= maxInlineImages {
			return
		}
		c.inlineSeen++
		src := attr(n, "src")
		if src == "" || strings.HasPrefix(src, "data:") {
			src = firstNonEmpty(attr(n, "data-src"), attr(n, "data-lazy-src"), firstSrcset(attr(n, "srcset")))
		}
		if abs := resolveReference(c.base, src); abs != "" {
			c.inlineImages = append(c.inlineImages, abs)
		}
	case atom.A:
		href := resolveReference(c.base, attr(n, "href"))
		if href != "" && IsProfileURL(href) {
			c.socialLinks = append(c.socialLinks, canonicalSocialURL(href))
		}
	}
}

func (c *metaCollector) visitMeta(n *html.Node) {
	key := strings.ToLower(firstNonEmpty(attr(n, "property"), attr(n, "name")))
	content := strings.TrimSpace(attr(n, "content"))
	if key == "" || content == "" {
		return
	}
	switch key {
	case "og:title":
		c.ogTitle = firstNonEmpty(c.ogTitle, content)
	case "og:description":
		c.ogDescription = firstNonEmpty(c.ogDescription, content)
	case "description":
		c.description = firstNonEmpty(c.description, content)
	case "twitter:description":
		c.twitterDesc = firstNonEmpty(c.twitterDesc, content)
	case "og:image", "og:image:url", "og:image:secure_url":
		if abs := resolveReference(c.base, content); abs != "" {
			c.ogImages = append(c.ogImages, abs)
		}
	case "twitter:image", "twitter:image:src":
		if abs := resolveReference(c.base, content); abs != "" {
			c.twitterImages = append(c.twitterImages, abs)
		}
	}
}

func (c *metaCollector) result() Metadata {
	m := Metadata{
		Title:       collapseSpace(firstNonEmpty(c.ogTitle, c.title)),
		Description: collapseSpace(firstNonEmpty(c.ogDescription, c.description, c.twitterDesc)),
	}

	seen := make(map[string]bool)
	add := func(list []string, limit int) {
		added := 0
		for _, img := range list {
			if limit > 0 && added == limit {
				return
			}
			if seen[img] || !IsPlausibleImage(img) {
				continue
			}
			seen[img] = true
			m.Images = append(m.Images, img)
			added++
		}
	}
	add(c.ogImages, 0)
	add(c.twitterImages, 0)
	add(c.jsonLDImages, 0)
	if len(m.Images) == 0 {
		add(c.inlineImages, 1)
	}

	linkSeen := make(map[string]bool)
	for _, l := range c.socialLinks {
		if !linkSeen[l] {
			linkSeen[l] = true
			m.SocialLinks = append(m.SocialLinks, l)
		}
	}
	return m
}

// jsonLDImages pulls image/logo/photo values out of a JSON-LD block. Values
// may be strings, arrays, ImageObjects or nested @graph entries.
func jsonLDImages(raw string) []string {
	var doc interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil
	}
	var out []string
	var walk func(v interface{}, depth int)
	walk = func(v interface{}, depth int) {
		if depth > 6 {
			return
		}
		switch t := v.(type) {
		case []interface{}:
			for _, item := range t {
				walk(item, depth+1)
			}
		case map[string]interface{}:
			for _, field := range []string{"image", "photo", "logo"} {
				out = append(out, imageValues(t[field])...)
			}
			for k, child := range t {
				if k == "image" || k == "photo" || k == "logo" {
					continue
				}
				if _, nested := child.(map[string]interface{}); nested {
					walk(child, depth+1)
				} else if _, list := child.([]interface{}); list {
					walk(child, depth+1)
				}
			}
		}
	}
	walk(doc, 0)
	return out
}

func imageValues(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		var out []string
		for _, item := range t {
			out = append(out, imageValues(item)...)
		}
		return out
	case map[string]interface{}:
		for _, k := range []string{"url", "contentUrl"} {
			if s, ok := t[k].(string); ok && s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// firstSrcset returns the first candidate URL of a srcset attribute.
func firstSrcset(srcset string) string {
	first := strings.TrimSpace(strings.Split(srcset, ",")[0])
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return first
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
