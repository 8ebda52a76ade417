package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"gnest/internal/domain/user"
	"gnest/internal/interfaces/filters"
	"gnest/internal/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	events []any
}

func (e *recordingEmitter) Emit(_ context.Context, event any) ([]any, error) {
	e.events = append(e.events, event)
	return nil, nil
}

func newUserHandler() (*UserHandler, *recordingEmitter) {
	issuer := token.NewIssuer("secret", "test")
	svc := user.NewUserService(user.NewMemoryRepository(), issuer, time.Minute, time.Hour)
	em := &recordingEmitter{}
	return NewUserHandler(svc, em), em
}

func TestRegisterEmitsEvent(t *testing.T) {
	h, em := newUserHandler()
	ctx := context.Background()

	res, err := h.Register(ctx, &user.CreateUserDTO{UserName: "dave", Password: "s3cret-pass"})
	require.NoError(t, err)
	u := res.Data.(*user.User)
	assert.Equal(t, "dave", u.UserName)

	require.Len(t, em.events, 1)
	ev := em.events[0].(user.Registered)
	assert.Equal(t, u.ID, ev.ID)
	assert.Equal(t, "user.registered", ev.EventName())

	_, err = h.Register(ctx, &user.CreateUserDTO{UserName: "dave", Password: "s3cret-pass"})
	var conflict *user.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Len(t, em.events, 1)
}

func TestLoginAndMe(t *testing.T) {
	h, _ := newUserHandler()
	ctx := context.Background()
	_, err := h.Register(ctx, &user.CreateUserDTO{UserName: "erin", Password: "s3cret-pass"})
	require.NoError(t, err)

	res, err := h.Login(ctx, &user.LoginDTO{UserName: "erin", Password: "s3cret-pass"})
	require.NoError(t, err)
	tokens := res.Data.(*user.Tokens)

	res, err = h.Me(ctx, mustParse(t, tokens.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, "erin", res.Data.(*user.User).UserName)

	_, err = h.Login(ctx, &user.LoginDTO{UserName: "erin", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, filters.StatusOf(err))
}

func mustParse(t *testing.T, raw string) *token.Claims {
	t.Helper()
	c, err := token.NewIssuer("secret", "test").Parse(raw)
	require.NoError(t, err)
	return c
}

func TestIncidentHandlerDisabledStores(t *testing.T) {
	h := &IncidentHandler{}
	ctx := context.Background()

	_, err := h.List(ctx, &ListIncidentsQuery{})
	assert.Equal(t, http.StatusServiceUnavailable, filters.StatusOf(err))
	_, err = h.Get(ctx, &IncidentURI{ID: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, filters.StatusOf(err))
	_, err = h.SearchIncidents(ctx, &SearchIncidentsQuery{})
	assert.Equal(t, http.StatusServiceUnavailable, filters.StatusOf(err))
}
