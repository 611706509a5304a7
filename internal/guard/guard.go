// Package guard decides what to do with a request given the browser's
// session state. It holds no state of its own.
package guard

import "github.com/vbonduro/fotovendas/internal/session"

// Access classifies a route.
type Access int

const (
	// Unknown routes are not part of the routing table.
	Unknown Access = iota
	// Protected routes need a signed-in user.
	Protected
	// Public routes are the sign-in, sign-up and password screens.
	Public
	// Open routes are served regardless of the session.
	Open
)

type Action int

const (
	Render Action = iota
	Placeholder
	Redirect
)

const (
	LoginPath = "/login"
	RootPath  = "/"
)

type Decision struct {
	Action   Action
	Location string
}

// Decide maps a session state and a route's access class to an action.
// Unknown routes go to the root whatever the state; nothing else branches
// on the user while the session is still loading.
func Decide(state session.State, access Access) Decision {
	if access == Unknown {
		return Decision{Action: Redirect, Location: RootPath}
	}
	if access == Open {
		return Decision{Action: Render}
	}
	if state.Loading {
		return Decision{Action: Placeholder}
	}
	switch access {
	case Protected:
		if state.User == nil {
			return Decision{Action: Redirect, Location: LoginPath}
		}
	case Public:
		if state.User != nil {
			return Decision{Action: Redirect, Location: RootPath}
		}
	}
	return Decision{Action: Render}
}
