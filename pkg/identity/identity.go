// Package identity defines the collaborator interface through which the host
// application supplies the current actor. The layer never authenticates
// anyone itself; it only consumes what the host's session system resolved.
package identity

import "context"

// Actor is the identity snapshot for one request.
type Actor struct {
	ID     string
	Name   string
	Admin  bool
	Source string // caller network address, for audit metadata
	Agent  string // user-agent string, for audit metadata

	// Grants are capabilities assigned directly to the actor.
	Grants []string
	// GroupGrants maps group name to that group's capabilities.
	GroupGrants map[string][]string
	// Scopes the actor is a member of, e.g. "tenant:7".
	Scopes []string
}

// HasDirectGrant reports whether the capability is directly assigned.
func (a *Actor) HasDirectGrant(capability string) bool {
	for _, g := range a.Grants {
		if g == capability {
			return true
		}
	}
	return false
}

// HasGroupGrant reports whether any group carries the capability.
func (a *Actor) HasGroupGrant(capability string) bool {
	for _, grants := range a.GroupGrants {
		for _, g := range grants {
			if g == capability {
				return true
			}
		}
	}
	return false
}

// MemberOf reports membership in a scope. The empty and "global" scopes need
// no membership.
func (a *Actor) MemberOf(scope string) bool {
	if scope == "" || scope == "global" {
		return true
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Provider resolves the acting identity for a request context.
type Provider interface {
	Current(ctx context.Context) (*Actor, error)
}

// StaticProvider returns a fixed actor; used by the CLI and tests.
type StaticProvider struct {
	Actor *Actor
}

func (p *StaticProvider) Current(ctx context.Context) (*Actor, error) {
	return p.Actor, nil
}
