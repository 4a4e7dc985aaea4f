// Package access decides whether a capture request may proceed, based on
// the auth and entitlement signals published by external collaborators.
package access

import (
	"log/slog"
	"sync"
)

// Decision is the outcome of the capture gate.
type Decision string

const (
	Allowed            Decision = "allowed"
	RequireSignIn      Decision = "require-sign-in"
	RequireEntitlement Decision = "require-entitlement"
)

// CanCapture is the pure gate decision. Sign-in is checked before
// entitlement so an anonymous user is told to sign in first.
func CanCapture(signedIn, hasEntitlement bool) Decision {
	if !signedIn {
		return RequireSignIn
	}
	if !hasEntitlement {
		return RequireEntitlement
	}
	return Allowed
}

// State is a point-in-time view of the upstream signals.
type State struct {
	UserID         string
	HasEntitlement bool
}

// SignedIn reports whether a user identity is present.
func (s State) SignedIn() bool { return s.UserID != "" }

// Decide applies the gate to this snapshot.
func (s State) Decide() Decision {
	return CanCapture(s.SignedIn(), s.HasEntitlement)
}

// Signals receives the reactive auth/entitlement inputs. Transitions to a
// more restrictive state change what future capture requests see; they
// never cancel a session already past the gate.
type Signals struct {
	mu    sync.RWMutex
	state State
}

// NewSignals returns an empty (anonymous, unentitled) signal holder.
func NewSignals() *Signals {
	return &Signals{}
}

// SetUser records the current user id; empty means signed out.
func (s *Signals) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.UserID != userID {
		slog.Info("auth signal changed", "signed_in", userID != "")
	}
	s.state.UserID = userID
}

// SetEntitlement records whether the user has access to the app.
func (s *Signals) SetEntitlement(has bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.HasEntitlement != has {
		slog.Info("entitlement signal changed", "has_entitlement", has)
	}
	s.state.HasEntitlement = has
}

// Snapshot returns the current signal values.
func (s *Signals) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
