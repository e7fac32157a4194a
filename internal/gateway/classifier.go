// Package gateway holds the edge logic in front of the task API: which paths
// need a credential, where the credential comes from, whether a request may
// pass, and how a passing request is relayed upstream.
package gateway

import (
	"path"
	"strings"
)

type PathClass int

const (
	Public PathClass = iota
	Protected
)

func (c PathClass) String() string {
	if c == Protected {
		return "protected"
	}
	return "public"
}

// PathClassifier matches request paths against prefix lists. Public prefixes
// override protected ones.
type PathClassifier struct {
	protected []string
	public    []string
}

func NewPathClassifier(protected, public []string) *PathClassifier {
	return &PathClassifier{
		protected: normalizePrefixes(protected),
		public:    normalizePrefixes(public),
	}
}

// Classify matches the cleaned path, so spellings such as //tasks or
// /x/../tasks that an upstream would resolve to /tasks are protected too.
func (pc *PathClassifier) Classify(p string) PathClass {
	p = cleanPath(p)
	if hasAnyPrefix(p, pc.public) {
		return Public
	}
	if hasAnyPrefix(p, pc.protected) {
		return Protected
	}
	return Public
}

// cleanPath resolves dot segments and repeated slashes and keeps a trailing
// slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}
