package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProfileURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.instagram.com/spierwinefarm/", true},
		{"https://instagram.com/p/CxYz123/", false},
		{"https://www.facebook.com/SpierWineFarm", true},
		{"https://www.facebook.com/pages/Spier/12345", true},
		{"https://www.facebook.com/profile.php?id=100064", true},
		{"https://www.facebook.com/profile.php", false},
		{"https://www.facebook.com/sharer/sharer.php?u=https://spier.co.za", false},
		{"https://twitter.com/intent/tweet?text=hi", false},
		{"https://x.com/spier", true},
		{"https://x.com/spier/status/123", false},
		{"https://www.youtube.com/@spier", true},
		{"https://www.youtube.com/channel/UC123", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://www.linkedin.com/company/spier", true},
		{"https://www.linkedin.com/feed", false},
		{"https://example.com/spier", false},
		{"https://www.instagram.com/", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProfileURL(tt.url))
		})
	}
}

func TestSocialNetwork(t *testing.T) {
	assert.Equal(t, "instagram", SocialNetwork("https://m.instagram.com/a"))
	assert.Equal(t, "x", SocialNetwork("https://twitter.com/a"))
	assert.Equal(t, "", SocialNetwork("https://example.com/a"))
}

func TestCanonicalSocialURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/spier", canonicalSocialURL("http://www.instagram.com/spier/?hl=en#top"))
	assert.Equal(t, "https://www.facebook.com/profile.php?id=42", canonicalSocialURL("https://www.facebook.com/profile.php?id=42"))
}
