package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		requestURI string
		granted    []string
		want       bool
	}{
		{
			name:       "empty audience set matches any request",
			requestURI: "https://any.example.com/anything",
			granted:    []string{},
			want:       true,
		},
		{
			name:       "nil audience set matches any request",
			requestURI: "https://any.example.com/anything",
			granted:    nil,
			want:       true,
		},
		{
			name:       "exact uri",
			requestURI: "https://api.example.com/",
			granted:    []string{"https://api.example.com"},
			want:       true,
		},
		{
			name:       "path prefix at segment boundary",
			requestURI: "https://api.example.com/foo/bar",
			granted:    []string{"https://api.example.com/foo"},
			want:       true,
		},
		{
			name:       "deeper path under audience",
			requestURI: "https://api.example.com/api/users",
			granted:    []string{"https://api.example.com/api"},
			want:       true,
		},
		{
			name:       "different path",
			requestURI: "https://api.example.com/bar",
			granted:    []string{"https://api.example.com/foo"},
			want:       false,
		},
		{
			name:       "different host",
			requestURI: "https://other.example.com/",
			granted:    []string{"https://api.example.com"},
			want:       false,
		},
		{
			name:       "scheme mismatch http vs https",
			requestURI: "http://api.example.com/",
			granted:    []string{"https://api.example.com"},
			want:       false,
		},
		{
			name:       "no accidental prefix collision without segment boundary",
			requestURI: "https://api.example.com/api",
			granted:    []string{"https://api.example.com/ap"},
			want:       false,
		},
		{
			name:       "foobar does not match foo",
			requestURI: "https://api.example.com/foobar",
			granted:    []string{"https://api.example.com/foo"},
			want:       false,
		},
		{
			name:       "trailing slash on audience is normalized",
			requestURI: "https://api.example.com/foo/bar",
			granted:    []string{"https://api.example.com/foo/"},
			want:       true,
		},
		{
			name:       "one of multiple audiences matches",
			requestURI: "https://data.example.com/v1/records",
			granted:    []string{"https://api.example.com", "https://data.example.com"},
			want:       true,
		},
		{
			name:       "none of multiple audiences matches",
			requestURI: "https://evil.example.com/admin",
			granted:    []string{"https://api.example.com", "https://data.example.com"},
			want:       false,
		},
		{
			name:       "port must match",
			requestURI: "https://api.example.com:8443/foo",
			granted:    []string{"https://api.example.com/foo"},
			want:       false,
		},
		{
			name:       "same port matches",
			requestURI: "https://api.example.com:8443/foo/bar",
			granted:    []string{"https://api.example.com:8443/foo"},
			want:       true,
		},
		{
			name:       "unparseable audience entry never matches",
			requestURI: "https://api.example.com/foo",
			granted:    []string{"://bad-uri"},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.requestURI, tt.granted))
		})
	}
}

func TestPrefixValidatorAllows(t *testing.T) {
	v := NewPrefixValidator()

	assert.True(t, v.Allows("https://api.example.com/mcp/files", []string{"https://api.example.com/mcp"}))
	assert.False(t, v.Allows("https://data.example.com/mcp", []string{"https://api.example.com/mcp"}))
	assert.True(t, v.Allows("https://anything.example.com/", nil))
}
