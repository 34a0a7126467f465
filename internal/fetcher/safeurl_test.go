package fetcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL_RejectsUnsafeTargets(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://example.com/page", nil},
		{"http://93.184.216.34/", nil},
		{"ftp://example.com/file", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://localhost:8080/", ErrPrivateHost},
		{"http://api.localhost/", ErrPrivateHost},
		{"http://printer.local/", ErrPrivateHost},
		{"http://intranet/", ErrPrivateHost},
		{"http://127.0.0.1/", ErrPrivateHost},
		{"http://10.1.2.3/", ErrPrivateHost},
		{"http://172.20.0.1/", ErrPrivateHost},
		{"http://192.168.1.1/", ErrPrivateHost},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateHost},
		{"http://[::1]/", ErrPrivateHost},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidateURL_LiteralIPs(t *testing.T) {
	assert.ErrorIs(t, ValidateURL("http://127.0.0.1:9000/x"), ErrPrivateHost)
	assert.NoError(t, ValidateURL("https://8.8.8.8/"))
	assert.Error(t, ValidateURL("http:///nohost"))
}
