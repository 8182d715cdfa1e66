// Package auth turns request credentials into a tenancy.Principal.
//
// Two strategies exist: session tokens for people and API keys for machine
// clients. A Chain runs them in order and the first one that recognizes its
// credential decides the outcome.
package auth

import (
	"net/http"

	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

type Outcome int

const (
	// NoOpinion means the strategy's credential was absent.
	NoOpinion Outcome = iota
	Success
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "no_opinion"
}

// Result is the outcome of one authentication attempt. Principal is set on
// Success; Reason is set on Failure.
type Result struct {
	Outcome   Outcome
	Principal *tenancy.Principal
	Reason    string
}

func noOpinion() Result { return Result{Outcome: NoOpinion} }

func success(p *tenancy.Principal) Result { return Result{Outcome: Success, Principal: p} }

func failure(reason string) Result { return Result{Outcome: Failure, Reason: reason} }

// Authenticator is one credential strategy.
type Authenticator interface {
	Authenticate(r *http.Request) Result
}

// Chain tries each authenticator in order. The first Success or Failure is
// final; when every strategy has no opinion the request is anonymous.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) Result {
	for _, a := range c {
		if res := a.Authenticate(r); res.Outcome != NoOpinion {
			return res
		}
	}
	return noOpinion()
}
