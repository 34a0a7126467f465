package preview

import (
	"net/url"
	"path"
	"strings"
)

// rejectImageTokens mark branding and UI chrome rather than photos.
var rejectImageTokens = []string{
	"favicon", "logo", "icon", "sprite", "badge", "placeholder",
	"spinner", "loading", "pixel", "blank", "avatar-default",
}

var photoExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".avif": true, ".heic": true,
}

// uploadPathPatterns match CMS and CDN paths that serve photos without a
// file extension.
var uploadPathPatterns = []string{
	"/wp-content/uploads/",
	"/uploads/",
	"/images/",
	"/media/",
	"/photos/",
	"/gallery/",
	"images.squarespace-cdn.com",
	"static.wixstatic.com/media/",
	"res.cloudinary.com",
	"imgix.net",
	"cdn.shopify.com",
	"scontent",
	"fbcdn.net",
	"cdninstagram.com",
	"googleusercontent.com",
}

// IsPlausibleImage reports whether raw looks like a real photograph: an
// absolute http(s) URL, not a data URI, not an svg/ico, free of branding
// tokens, and either a photo extension or a known upload path.
func IsPlausibleImage(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}

	lower := strings.ToLower(u.Host + u.Path)
	for _, tok := range rejectImageTokens {
		if strings.Contains(lower, tok) {
			return false
		}
	}

	ext := path.Ext(strings.ToLower(u.Path))
	switch ext {
	case ".svg", ".ico", ".gif":
		return false
	}
	if photoExtensions[ext] {
		return true
	}
	for _, p := range uploadPathPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// resolveReference makes ref absolute against base. It returns "" for
// references that do not resolve to http(s).
func resolveReference(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
