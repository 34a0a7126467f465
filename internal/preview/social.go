package preview

import (
	"net/url"
	"strings"
)

// socialHosts maps a registrable host to its network name.
var socialHosts = map[string]string{
	"instagram.com": "instagram",
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"x.com":         "x",
	"twitter.com":   "x",
	"tiktok.com":    "tiktok",
	"youtube.com":   "youtube",
	"linkedin.com":  "linkedin",
	"pinterest.com": "pinterest",
}

// nonProfileSegments are path parts of share widgets and app chrome.
var nonProfileSegments = map[string]bool{
	"share": true, "sharer": true, "sharer.php": true, "intent": true,
	"plugins": true, "dialog": true, "login": true, "signup": true,
	"home": true, "home.php": true, "privacy": true, "legal": true,
	"help": true, "about": true, "explore": true, "hashtag": true,
	"search": true, "watch": true, "p": true, "reel": true, "status": true,
	"events": true, "groups": true, "tr": true, "embed": true, "oauth": true,
}

// SocialNetwork returns the network for a URL ("instagram", "facebook", ...)
// or "" when the host is not a known social network.
func SocialNetwork(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return socialHosts[host]
}

// IsProfileURL reports whether raw points at an account page rather than a
// post, share widget or login flow.
func IsProfileURL(raw string) bool {
	network := SocialNetwork(raw)
	if network == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, strings.ToLower(s))
		}
	}
	if len(segments) == 0 {
		return false
	}
	for _, s := range segments {
		if nonProfileSegments[s] {
			return false
		}
	}

	switch network {
	case "youtube":
		if strings.HasPrefix(segments[0], "@") {
			return len(segments) == 1
		}
		return len(segments) == 2 && (segments[0] == "channel" || segments[0] == "c" || segments[0] == "user")
	case "linkedin":
		return len(segments) == 2 && (segments[0] == "company" || segments[0] == "in" || segments[0] == "school")
	case "facebook":
		if segments[0] == "pages" {
			return len(segments) >= 2
		}
		if segments[0] == "profile.php" {
			return u.Query().Get("id") != ""
		}
		return len(segments) == 1
	default:
		return len(segments) == 1
	}
}

// canonicalSocialURL strips query and fragment (except facebook profile ids)
// and trailing slashes.
// isFacebookProfileID matches facebook.com/profile.php?id=... pages.
func isFacebookProfileID(u *url.URL) bool {
	return SocialNetwork(u.String()) == "facebook" &&
		strings.HasSuffix(u.Path, "/profile.php") &&
		u.Query().Get("id") != ""
}

func canonicalSocialURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	if isFacebookProfileID(u) {
		u.RawQuery = url.Values{"id": {u.Query().Get("id")}}.Encode()
	} else {
		u.RawQuery = ""
	}
	u.Fragment = ""
	u.Scheme = "https"
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
