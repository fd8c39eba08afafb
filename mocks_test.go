package account_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-with-32-bytes!!"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []account.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt account.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []account.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]account.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

func (c *capturingSink) Last(eventType account.ActivityEventType) (account.ActivityEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType == eventType {
			return c.events[i], true
		}
	}
	return account.ActivityEvent{}, false
}

type capturingGateway struct {
	mu       sync.Mutex
	messages []account.Message
	err      error
}

func (g *capturingGateway) Send(ctx context.Context, msg account.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.messages = append(g.messages, msg)
	return nil
}

func (g *capturingGateway) Messages() []account.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]account.Message(nil), g.messages...)
}

func (g *capturingGateway) Last(t *testing.T) account.Message {
	t.Helper()
	msgs := g.Messages()
	require.NotEmpty(t, msgs, "no message was sent")
	return msgs[len(msgs)-1]
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Send(ctx context.Context, msg account.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.Called(msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.Called(msg, args) }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, account.Migrate(context.Background(), db))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepo(t *testing.T, clock *testClock, opts ...account.IdentitiesOption) account.RepositoryManager {
	t.Helper()
	opts = append([]account.IdentitiesOption{
		account.WithIdentitiesHasher(account.NewBcryptHasher(bcrypt.MinCost)),
		account.WithIdentitiesClock(clock.Now),
	}, opts...)
	repo := account.NewRepositoryManager(newTestDB(t), opts...)
	require.NoError(t, repo.Validate())
	return repo
}

// hookHasher runs onCompare before delegating, standing in for work done
// by a concurrent request while the hash is compared.
type hookHasher struct {
	account.PasswordHasher
	onCompare func()
}

func (h *hookHasher) ComparePasswordAndHash(password, hash string) error {
	if h.onCompare != nil {
		h.onCompare()
	}
	return h.PasswordHasher.ComparePasswordAndHash(password, hash)
}

// lockRow stores a lockout window directly, bypassing any in-memory copy
func lockRow(t *testing.T, db bun.IDB, id uuid.UUID, failed int, until time.Time) {
	t.Helper()
	_, err := db.NewUpdate().
		Model((*account.Identity)(nil)).
		Set("failed_attempts = ?", failed).
		Set("lockout_end = ?", until).
		Set("concurrency_stamp = ?", uuid.NewString()).
		Where("id = ?", id).
		Exec(context.Background())
	require.NoError(t, err)
}

type harness struct {
	repo      account.RepositoryManager
	clock     *testClock
	gateway   *capturingGateway
	sink      *capturingSink
	tokens    *account.TokenIssuer
	lockout   *account.LockoutPolicy
	sessions  *account.JWTSessions
	notifier  *account.Notifier
	lifecycle *account.Lifecycle
}

func newHarness(t *testing.T, opts ...account.IdentitiesOption) *harness {
	t.Helper()

	h := &harness{
		clock:   newTestClock(),
		gateway: &capturingGateway{},
		sink:    &capturingSink{},
	}
	h.repo = newTestRepo(t, h.clock, opts...)

	h.tokens = account.NewTokenIssuer(h.repo, account.DefaultTokenSettings(testSigningKey)).
		WithClock(h.clock.Now)
	h.lockout = account.NewLockoutPolicy(h.repo, account.DefaultLockoutRules()).
		WithClock(h.clock.Now)

	store := account.NewMemorySessionStore().WithClock(h.clock.Now)
	h.sessions = account.NewJWTSessions(account.DefaultTokenSettings(testSigningKey), account.DefaultSessionSettings(), store).
		WithClock(h.clock.Now)

	h.notifier = account.NewNotifier(h.gateway, "https://accounts.mcvz.com")

	h.lifecycle = account.NewLifecycle(h.repo, h.tokens, h.lockout, h.sessions, h.notifier).
		WithActivitySink(h.sink).
		WithClock(h.clock.Now)

	return h
}

func (h *harness) register(t *testing.T, username, password string) *account.Identity {
	t.Helper()
	res, err := h.lifecycle.Register(context.Background(), account.RegisterMessage{
		Username: username,
		Email:    username + "@x.com",
		Password: password,
	})
	require.NoError(t, err)
	return res.Identity
}

// lastLink returns the query of the link carried by the last message
func (h *harness) lastLink(t *testing.T) url.Values {
	t.Helper()
	h.notifier.Wait()
	return linkQuery(t, h.gateway.Last(t))
}

// linkTo returns the query of the link in the last message with subject
// sent to recipient
func (h *harness) linkTo(t *testing.T, recipient, subject string) url.Values {
	t.Helper()
	h.notifier.Wait()

	msgs := h.gateway.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To == recipient && msgs[i].Subject == subject {
			return linkQuery(t, msgs[i])
		}
	}
	require.FailNow(t, "no message found", "to=%s subject=%s", recipient, subject)
	return nil
}

func linkQuery(t *testing.T, msg account.Message) url.Values {
	t.Helper()
	fields := strings.Fields(msg.Text)
	require.NotEmpty(t, fields)

	link, err := url.Parse(fields[len(fields)-1])
	require.NoError(t, err)
	return link.Query()
}

func (h *harness) registerConfirmed(t *testing.T, username, password string) *account.Identity {
	t.Helper()
	identity := h.register(t, username, password)
	q := h.lastLink(t)
	require.NoError(t, h.lifecycle.ConfirmEmail(context.Background(), q.Get("userId"), q.Get("token")))
	return identity
}
