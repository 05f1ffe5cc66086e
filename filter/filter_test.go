package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		url     string
		want    bool
	}{
		{"wildcard matches anything", "*", "https://example.com/a?b=c", true},
		{"domain anchor exact host", "||a.com", "https://a.com/", true},
		{"domain anchor subdomain", "||a.com", "http://www.a.com/path", true},
		{"domain anchor other domain", "||a.com", "https://nota.com/", false},
		{"domain anchor in path does not match", "||a.com", "https://b.com/a.com", false},
		{"domain anchor is case-insensitive", "||Example.COM", "https://WWW.example.com/", true},
		{"domain anchor with userinfo", "||a.com", "https://user:pw@a.com/", true},
		{"domain anchor ignores host-like userinfo", "||a.com", "http://x.a.com@evil.com/", false},
		{"domain anchor ignores bare userinfo", "||a.com", "http://a.com@evil.com/", false},
		{"domain anchor with userinfo on subdomain", "||a.com", "http://a.com@www.a.com/", true},
		{"at sign in path keeps host", "||a.com", "https://a.com/u@b.com", true},
		{"substring match", "tracker", "https://x.com/tracker.js", true},
		{"start anchor", "|https://a.com", "https://a.com/x", true},
		{"start anchor miss", "|https://a.com", "http://b.com/?u=https://a.com", false},
		{"end anchor", ".js|", "https://a.com/app.js", true},
		{"end anchor miss", ".js|", "https://a.com/app.js?v=1", false},
		{"separator before path", "||a.com^", "https://a.com/x", true},
		{"separator at end", "||a.com^", "https://a.com", true},
		{"separator rejects longer host", "||a.com^", "https://a.com.evil.net/", false},
		{"inner wildcard", "||a.com/*/img", "https://a.com/static/img/1.png", true},
		{"regexp metacharacters are literal", "a+b", "https://x.com/a+b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.url))
		})
	}
}

func TestCompileRejectsInvalidPatterns(t *testing.T) {
	for _, p := range []string{"", "||", "a|b", "||ü.com"} {
		_, err := Compile(p)
		require.Error(t, err, "pattern %q", p)
		assert.True(t, errors.Is(err, ErrInvalidFilter), "pattern %q", p)
	}
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, DomainMatches("openai.com", "openai.com"))
	assert.True(t, DomainMatches("cdn.oaistatic.com", "oaistatic.com"))
	assert.True(t, DomainMatches("Chat.OpenAI.com:443", "openai.com"))
	assert.True(t, DomainMatches("openai.com.", "openai.com"))
	assert.False(t, DomainMatches("notopenai.com", "openai.com"))
	assert.False(t, DomainMatches("openai.com", ""))
	assert.False(t, DomainMatches("", "openai.com"))

	assert.True(t, AnyDomainMatches("chatgpt.com", []string{"a.com", "chatgpt.com"}))
	assert.False(t, AnyDomainMatches("chatgpt.com", nil))
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("Example.com:8080"))
	assert.Equal(t, "::1", NormalizeHost("[::1]:443"))
	assert.Equal(t, "example.com", NormalizeHost("example.com."))
}
