package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	testCases := []struct {
		pattern, path string
		match         bool
	}{
		{"/api/private/**", "/api/private/data", true},
		{"/api/private/**", "/api/private/a/b/c", true},
		{"/api/private/**", "/api/private", true},
		{"/api/private/**", "/api/public/info", false},
		{"/api/private/**", "/api/privateer/x", false},
		{"*", "/x", true},
		{"*", "/x/y", false},
		{"**", "/x/y/z", true},
		{"**", "/", true},
		{"/**", "", true},
		{"/a/**/z", "/a/z", true},
		{"/a/**/z", "/a/b/c/z", true},
		{"/a/**/z", "/a/b/c/y", false},
		{"/a/**/**/z", "/a/b/z", true},
		{"/**/*.html", "/docs/index.html", true},
		{"/**/*.html", "/docs/index.htm", false},
		{"/user/?", "/user/1", true},
		{"/user/?", "/user/12", false},
		{"/user/??", "/user/12", true},
		{"/user/*", "/user/", true},
		{"/user/*/edit", "/user/bob/edit", true},
		{"/user/*/edit", "/user/bob/jim/edit", false},
		{"/API/**", "/api/x", false},
		{"/static", "/static", true},
		{"/static", "/static/", false},
		{"/static/", "/static/", true},
		{"/a*b", "/a-x-b", true},
	}
	for _, test := range testCases {
		assert.Equal(t, test.match, Match(test.pattern, test.path),
			"Match(%q, %q)", test.pattern, test.path)
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"/api/public/**", "/health"}
	assert.True(t, MatchAny(patterns, "/health"))
	assert.True(t, MatchAny(patterns, "/api/public/info"))
	assert.False(t, MatchAny(patterns, "/api/private/info"))
	assert.False(t, MatchAny(nil, "/health"))
}
