package gateway

import (
	"net/http"
	"strings"
)

type CredentialSource int

const (
	SourceNone CredentialSource = iota
	SourceHeader
	SourceCookie
)

func (s CredentialSource) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceCookie:
		return "cookie"
	default:
		return "none"
	}
}

// Credential is an opaque bearer token. Nothing here parses or verifies it.
type Credential struct {
	Token  string
	Source CredentialSource
}

// CredentialExtractor reads the bearer token from the Authorization header or
// from the first configured session cookie that carries a value.
type CredentialExtractor struct {
	cookieNames []string
}

func NewCredentialExtractor(cookieNames []string) *CredentialExtractor {
	names := make([]string, 0, len(cookieNames))
	for _, name := range cookieNames {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return &CredentialExtractor{cookieNames: names}
}

// Extract prefers the header over the cookie. The bool is false when neither
// carries a token.
func (e *CredentialExtractor) Extract(r *http.Request) (Credential, bool) {
	if cred, ok := e.FromHeader(r); ok {
		return cred, true
	}
	return e.FromCookie(r)
}

func (e *CredentialExtractor) FromHeader(r *http.Request) (Credential, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Credential{}, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Credential{}, false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return Credential{}, false
	}
	return Credential{Token: token, Source: SourceHeader}, true
}

func (e *CredentialExtractor) FromCookie(r *http.Request) (Credential, bool) {
	for _, name := range e.cookieNames {
		cookie, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return Credential{Token: token, Source: SourceCookie}, true
		}
	}
	return Credential{}, false
}
