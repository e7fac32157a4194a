package gateway

import (
	"net/http"
	"net/url"
)

// Policy tells the gate what a protected request without a credential gets.
// Page routes redirect to the login page, API routes are rejected.
type Policy int

const (
	PolicyRedirect Policy = iota
	PolicyReject
)

type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Reject:
		return "reject"
	default:
		return "allow"
	}
}

type Decision struct {
	Outcome Outcome
	// Location is the login URL carrying ReturnTo. Set only for Redirect.
	Location string
	// ReturnTo is the original path and query.
	ReturnTo string
}

// AuthGate only checks that a credential is present. It does not validate
// the token; the upstream does.
type AuthGate struct {
	classifier *PathClassifier
	extractor  *CredentialExtractor
	loginPath  string
}

func NewAuthGate(classifier *PathClassifier, extractor *CredentialExtractor, loginPath string) *AuthGate {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &AuthGate{
		classifier: classifier,
		extractor:  extractor,
		loginPath:  loginPath,
	}
}

func (g *AuthGate) Decide(r *http.Request, policy Policy) Decision {
	if g.classifier.Classify(r.URL.Path) != Protected {
		return Decision{Outcome: Allow}
	}
	if _, ok := g.extractor.Extract(r); ok {
		return Decision{Outcome: Allow}
	}

	returnTo := r.URL.RequestURI()
	if policy == PolicyReject {
		return Decision{Outcome: Reject, ReturnTo: returnTo}
	}

	query := url.Values{}
	query.Set("return_to", returnTo)
	return Decision{
		Outcome:  Redirect,
		Location: g.loginPath + "?" + query.Encode(),
		ReturnTo: returnTo,
	}
}
