package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/events"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/tabsync"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) All() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// browser is the cookie jar shared by tabs: a session started in one tab is
// visible to Me in every other tab of the same browser.
type browser struct {
	mu      sync.Mutex
	user    *models.User
	session string
}

func newBrowser(user *models.User) *browser {
	b := &browser{}
	if user != nil {
		b.set(user)
	}
	return b
}

func (b *browser) set(user *models.User) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = user.Clone()
	b.session = "s-" + user.ID
	return b.session
}

func (b *browser) get() (*models.User, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user.Clone(), b.session
}

func (b *browser) clear() {
	b.mu.Lock()
	b.user, b.session = nil, ""
	b.mu.Unlock()
}

type fakeAPI struct {
	log       *callLog
	jar       *browser
	meCalls   atomic.Int32
	meErr     error
	loginErr  error
	logoutErr error
	// onLogout runs inside the logout call, before it returns.
	onLogout func()

	mu      sync.Mutex
	session string
}

func (f *fakeAPI) Me(ctx context.Context) (*models.User, error) {
	f.meCalls.Add(1)
	f.log.add("api.me")
	if f.meErr != nil {
		return nil, f.meErr
	}
	user, session := f.jar.get()
	if user == nil {
		f.setSession("")
		return nil, unauthorised
	}
	f.setSession(session)
	return user, nil
}

func (f *fakeAPI) Login(ctx context.Context, req client.LoginRequest) (*models.User, error) {
	f.log.add("api.login")
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	user := &models.User{ID: "u-" + req.Email, Email: req.Email, Role: models.RoleUser}
	f.setSession(f.jar.set(user))
	return user, nil
}

func (f *fakeAPI) Register(ctx context.Context, req client.RegisterRequest) (*models.User, error) {
	f.log.add("api.register")
	user := &models.User{ID: "new", Email: req.Email, Name: req.Name, Role: req.Role}
	f.setSession(f.jar.set(user))
	return user, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.log.add("api.logout")
	if f.onLogout != nil {
		f.onLogout()
	}
	f.jar.clear()
	f.setSession("")
	return f.logoutErr
}

func (f *fakeAPI) LogoutAll(ctx context.Context) error {
	f.log.add("api.logout-all")
	f.jar.clear()
	f.setSession("")
	return f.logoutErr
}

func (f *fakeAPI) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeAPI) setSession(session string) {
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
}

type fakeRefresh struct {
	log     *callLog
	mu      sync.Mutex
	running bool
	starts  int
	nows    int
}

func (f *fakeRefresh) Start() {
	f.log.add("refresh.start")
	f.mu.Lock()
	f.running = true
	f.starts++
	f.mu.Unlock()
}

func (f *fakeRefresh) Stop() {
	f.log.add("refresh.stop")
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeRefresh) RefreshNow(ctx context.Context) {
	f.mu.Lock()
	f.nows++
	f.mu.Unlock()
}

func (f *fakeRefresh) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRefresh) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type tab struct {
	api      *fakeAPI
	refresh  *fakeRefresh
	bus      *events.Bus[events.SessionExpired]
	provider *Provider
	log      *callLog
}

// newTab opens a tab in a browser of its own, signed in as me when set.
func newTab(t *testing.T, hub *tabsync.Hub, me *models.User) *tab {
	t.Helper()
	return openTab(t, hub, newBrowser(me))
}

func openTab(t *testing.T, hub *tabsync.Hub, jar *browser) *tab {
	t.Helper()

	log := &callLog{}
	tb := &tab{
		api:     &fakeAPI{log: log, jar: jar},
		refresh: &fakeRefresh{log: log},
		bus:     events.NewBus[events.SessionExpired](),
		log:     log,
	}
	broadcast := tabsync.New(hub.Open(), tabsync.WithLogger(zerolog.Nop()))
	tb.provider = NewProvider(tb.api, tb.refresh, broadcast, tb.bus, WithLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = tb.provider.Close() })

	return tb
}

// listener is a bare tab used to observe broadcasts.
func listener(hub *tabsync.Hub) *[]tabsync.Message {
	var msgs []tabsync.Message
	s := tabsync.New(hub.Open(), tabsync.WithLogger(zerolog.Nop()))
	s.Subscribe(func(m tabsync.Message) { msgs = append(msgs, m) })
	return &msgs
}

var (
	userOne       = &models.User{ID: "u1", Email: "u1@example.com", Role: models.RoleUser}
	unauthorised  = apierror.New(http.StatusUnauthorized, "", "Not authenticated")
	errNetworkErr = errors.New("connection reset")
)

func TestNewProvider_StartsLoading(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), nil)

	state := tb.provider.Snapshot()
	assert.True(t, state.Loading)
	assert.Nil(t, state.User)
}

// Scenario A
func TestInit_ValidSession(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)

	tb.provider.Init(context.Background())

	assert.False(t, tb.provider.Loading())
	require.NotNil(t, tb.provider.User())
	assert.Equal(t, "u1", tb.provider.User().ID)
	assert.True(t, tb.refresh.Running())
}

// Scenario B
func TestInit_NoSession(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), nil)

	tb.provider.Init(context.Background())

	assert.False(t, tb.provider.Loading())
	assert.Nil(t, tb.provider.User())
	assert.Equal(t, 0, tb.refresh.Starts())
	assert.Equal(t, []string{"api.me"}, tb.log.All())
}

func TestInit_RunsOnce(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() { tb.provider.Init(context.Background()) })
	}
	wg.Wait()
	tb.provider.Init(context.Background())

	assert.Equal(t, int32(1), tb.api.meCalls.Load())
	assert.Equal(t, 1, tb.refresh.Starts())
}

func TestLogin(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, nil)
	others := listener(hub)

	tb.provider.Init(context.Background())
	user, err := tb.provider.Login(context.Background(), "a@example.com", "pw", true)
	require.NoError(t, err)

	assert.Equal(t, "u-a@example.com", user.ID)
	assert.Equal(t, user, tb.provider.User())
	assert.True(t, tb.refresh.Running())
	require.Len(t, *others, 1)
	assert.Equal(t, tabsync.MessageLogin, (*others)[0].Type)
	assert.Equal(t, user.ID, (*others)[0].User.ID)
}

func TestLogin_FailurePropagates(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, nil)
	others := listener(hub)
	tb.api.loginErr = apierror.New(http.StatusUnauthorized, "", "Invalid credentials")

	tb.provider.Init(context.Background())
	_, err := tb.provider.Login(context.Background(), "a@example.com", "bad", false)
	require.Error(t, err)

	assert.Nil(t, tb.provider.User())
	assert.False(t, tb.refresh.Running())
	assert.Empty(t, *others)
}

func TestRegister(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), nil)

	user, err := tb.provider.Register(context.Background(), "Ada", "ada@example.com", "pw", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.True(t, tb.provider.IsAuthenticated())
	assert.True(t, tb.refresh.Running())
}

func TestLogout_Ordering(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{name: "server succeeds"},
		{name: "server fails", logoutErr: errNetworkErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := tabsync.NewHub()
			tb := newTab(t, hub, userOne)
			others := listener(hub)
			tb.api.logoutErr = tt.logoutErr

			tb.provider.Init(context.Background())
			tb.provider.Logout(context.Background())

			assert.Equal(t, []string{"api.me", "refresh.start", "refresh.stop", "api.logout"}, tb.log.All())
			assert.Nil(t, tb.provider.User())
			assert.False(t, tb.refresh.Running())
			require.Len(t, *others, 1)
			assert.Equal(t, tabsync.MessageLogout, (*others)[0].Type)
		})
	}
}

func TestLogout_EndedByServerBroadcastsOnce(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, userOne)
	others := listener(hub)
	tb.api.logoutErr = apierror.New(http.StatusUnauthorized, apierror.CodeSessionRevoked, "Session revoked")
	tb.api.onLogout = func() {
		tb.bus.Publish(events.SessionExpired{Reason: apierror.CodeSessionRevoked})
	}

	tb.provider.Init(context.Background())

	var states []State
	tb.provider.Subscribe(func(s State) { states = append(states, s) })

	tb.provider.Logout(context.Background())

	assert.Nil(t, tb.provider.User())
	require.Len(t, *others, 1)
	assert.Equal(t, tabsync.MessageLogout, (*others)[0].Type)
	assert.Equal(t, "s-u1", (*others)[0].Session)
	assert.Len(t, states, 1)
}

func TestLogoutAll(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)
	tb.api.logoutErr = errNetworkErr

	tb.provider.Init(context.Background())
	err := tb.provider.LogoutAll(context.Background())

	require.ErrorIs(t, err, errNetworkErr)
	assert.Nil(t, tb.provider.User())
	assert.Equal(t, []string{"api.me", "refresh.start", "refresh.stop", "api.logout-all"}, tb.log.All())
}

// Scenario D, provider side.
func TestSessionExpired_ClearsAndBroadcastsOnce(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, userOne)
	others := listener(hub)

	tb.provider.Init(context.Background())

	tb.bus.Publish(events.SessionExpired{Reason: apierror.CodeHijackDetected})
	tb.bus.Publish(events.SessionExpired{Reason: apierror.CodeHijackDetected})

	assert.Nil(t, tb.provider.User())
	assert.False(t, tb.refresh.Running())
	require.Len(t, *others, 1)
	assert.Equal(t, tabsync.MessageLogout, (*others)[0].Type)
}

func TestSessionExpired_AnonymousIsNoop(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, nil)
	others := listener(hub)

	tb.provider.Init(context.Background())
	tb.bus.Publish(events.SessionExpired{Reason: apierror.CodeSessionExpired})

	assert.Empty(t, *others)
	assert.Equal(t, []string{"api.me"}, tb.log.All())
}

func TestCrossTab_LogoutClearsWithoutRebroadcast(t *testing.T) {
	hub := tabsync.NewHub()
	a := newTab(t, hub, userOne)
	b := openTab(t, hub, a.api.jar)
	others := listener(hub)

	a.provider.Init(context.Background())
	b.provider.Init(context.Background())

	a.provider.Logout(context.Background())

	assert.Nil(t, b.provider.User())
	assert.False(t, b.refresh.Running())
	assert.NotContains(t, b.log.All(), "api.logout")
	assert.Len(t, *others, 1, "only the tab that logged out broadcasts")
}

func TestCrossTab_LoginAdoptedOnlyWhenAnonymous(t *testing.T) {
	hub := tabsync.NewHub()
	a := newTab(t, hub, nil)
	b := openTab(t, hub, a.api.jar)
	c := newTab(t, hub, &models.User{ID: "someone-else"})
	elsewhere := newTab(t, hub, nil)

	for _, tb := range []*tab{a, b, c, elsewhere} {
		tb.provider.Init(context.Background())
	}

	user, err := a.provider.Login(context.Background(), "a@example.com", "pw", false)
	require.NoError(t, err)

	require.NotNil(t, b.provider.User())
	assert.Equal(t, user.ID, b.provider.User().ID)
	assert.True(t, b.refresh.Running())
	assert.Equal(t, a.api.SessionID(), b.api.SessionID())

	assert.Equal(t, "someone-else", c.provider.User().ID)

	assert.Nil(t, elsewhere.provider.User(), "no cookies for that session")
	assert.Equal(t, 0, elsewhere.refresh.Starts())
}

func TestCrossTab_OtherSessionsAreIgnored(t *testing.T) {
	hub := tabsync.NewHub()
	watcher := newTab(t, hub, userOne)
	oneShot := newTab(t, hub, nil)

	watcher.provider.Init(context.Background())
	oneShot.provider.Init(context.Background())

	_, err := oneShot.provider.Login(context.Background(), "u1@example.com", "pw", false)
	require.NoError(t, err)
	oneShot.provider.Logout(context.Background())

	require.NotNil(t, watcher.provider.User())
	assert.Equal(t, "u1", watcher.provider.User().ID)
	assert.True(t, watcher.refresh.Running())
	assert.Equal(t, "s-u1", watcher.api.SessionID())
}

func TestVisibilityChanged(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)
	ctx := context.Background()

	tb.provider.VisibilityChanged(ctx, true)
	assert.Equal(t, 0, tb.refresh.nows, "anonymous while loading")

	tb.provider.Init(ctx)
	tb.provider.VisibilityChanged(ctx, false)
	assert.Equal(t, 0, tb.refresh.nows)

	tb.provider.VisibilityChanged(ctx, true)
	assert.Equal(t, 1, tb.refresh.nows)

	tb.refresh.Stop()
	tb.provider.VisibilityChanged(ctx, true)
	assert.Equal(t, 1, tb.refresh.nows)
}

func TestSubscribe_ObservesEveryChange(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)

	var states []State
	unsubscribe := tb.provider.Subscribe(func(s State) { states = append(states, s) })

	tb.provider.Init(context.Background())
	tb.provider.Logout(context.Background())
	unsubscribe()
	_, _ = tb.provider.Login(context.Background(), "a@example.com", "pw", false)

	require.Len(t, states, 2)
	assert.False(t, states[0].Loading)
	assert.Equal(t, "u1", states[0].User.ID)
	assert.False(t, states[1].IsAuthenticated())
}

func TestSnapshot_IsACopy(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)
	tb.provider.Init(context.Background())

	snap := tb.provider.Snapshot()
	snap.User.Role = models.RoleAdmin

	assert.Equal(t, models.RoleUser, tb.provider.User().Role)
}

func TestRefresh(t *testing.T) {
	hub := tabsync.NewHub()
	tb := newTab(t, hub, userOne)
	others := listener(hub)
	ctx := context.Background()

	_, err := tb.provider.Refresh(ctx)
	require.ErrorIs(t, err, ErrNotInitialised)

	tb.provider.Init(ctx)
	user, err := tb.provider.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	tb.api.meErr = unauthorised
	_, err = tb.provider.Refresh(ctx)
	require.True(t, apierror.IsUnauthorized(err))
	assert.Nil(t, tb.provider.User())
	assert.False(t, tb.refresh.Running())
	require.Len(t, *others, 1)

	tb.api.meErr = errNetworkErr
	_, err = tb.provider.Refresh(ctx)
	require.ErrorIs(t, err, errNetworkErr)
}

func TestClose_DetachesFromEvents(t *testing.T) {
	tb := newTab(t, tabsync.NewHub(), userOne)
	tb.provider.Init(context.Background())

	require.NoError(t, tb.provider.Close())
	require.NoError(t, tb.provider.Close())
	assert.False(t, tb.refresh.Running())

	tb.bus.Publish(events.SessionExpired{Reason: apierror.CodeSessionRevoked})
	assert.NotNil(t, tb.provider.User())
}
