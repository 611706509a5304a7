package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterOrder(t *testing.T) {
	var b Broadcaster
	var got []string

	b.Subscribe(func(ev Event) { got = append(got, "first:"+string(ev.Kind)) })
	b.Subscribe(func(ev Event) { got = append(got, "second:"+string(ev.Kind)) })

	b.Emit(Event{Kind: EventSignedIn})
	b.Emit(Event{Kind: EventSignedOut})

	assert.Equal(t, []string{
		"first:SIGNED_IN", "second:SIGNED_IN",
		"first:SIGNED_OUT", "second:SIGNED_OUT",
	}, got)
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	var b Broadcaster
	calls := 0

	unsubscribe := b.Subscribe(func(Event) { calls++ })
	b.Emit(Event{Kind: EventSignedIn})
	unsubscribe()
	unsubscribe()
	b.Emit(Event{Kind: EventSignedIn})

	assert.Equal(t, 1, calls)
}

func TestBroadcasterUnsubscribeInsideCallback(t *testing.T) {
	var b Broadcaster
	var unsubscribe func()
	calls := 0

	unsubscribe = b.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})
	b.Emit(Event{Kind: EventSignedIn})
	b.Emit(Event{Kind: EventSignedIn})

	assert.Equal(t, 1, calls)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, (&Session{}).Expired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
}

func TestAccessTokenContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, AccessToken(ctx))
	assert.Equal(t, "tok", AccessToken(WithAccessToken(ctx, "tok")))
}
