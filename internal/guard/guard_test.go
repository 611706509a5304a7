package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/session"
)

func TestDecide(t *testing.T) {
	user := &domain.User{ID: "u-1"}
	loading := session.State{Loading: true}
	signedOut := session.State{}
	signedIn := session.State{User: user}

	tests := []struct {
		name   string
		state  session.State
		access Access
		want   Decision
	}{
		{"loading protected", loading, Protected, Decision{Action: Placeholder}},
		{"loading public", loading, Public, Decision{Action: Placeholder}},
		{"loading with stale user", session.State{User: user, Loading: true}, Protected, Decision{Action: Placeholder}},
		{"signed out protected", signedOut, Protected, Decision{Action: Redirect, Location: "/login"}},
		{"signed out public", signedOut, Public, Decision{Action: Render}},
		{"signed in protected", signedIn, Protected, Decision{Action: Render}},
		{"signed in public", signedIn, Public, Decision{Action: Redirect, Location: "/"}},
		{"unknown while loading", loading, Unknown, Decision{Action: Redirect, Location: "/"}},
		{"unknown signed out", signedOut, Unknown, Decision{Action: Redirect, Location: "/"}},
		{"unknown signed in", signedIn, Unknown, Decision{Action: Redirect, Location: "/"}},
		{"open while loading", loading, Open, Decision{Action: Render}},
		{"open signed out", signedOut, Open, Decision{Action: Render}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.access))
		})
	}
}
