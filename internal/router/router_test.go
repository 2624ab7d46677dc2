package router

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaylabs/unigw/internal/credential"
	"github.com/gatewaylabs/unigw/internal/vault"
)

// fakeAdapter is a scripted Adapter for router tests.
type fakeAdapter struct {
	mu            sync.Mutex
	executeCalls  int
	executeErr    error
	data          map[string]any
	onExecute     func(ctx context.Context)
	validateOK    bool
	validateErr   error
	validateCalls int
}

func (a *fakeAdapter) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	a.mu.Lock()
	a.executeCalls++
	a.mu.Unlock()

	if a.onExecute != nil {
		a.onExecute(ctx)
	}
	if a.executeErr != nil {
		return nil, a.executeErr
	}
	if a.data != nil {
		return a.data, nil
	}
	return map[string]any{"status": "ok"}, nil
}

func (a *fakeAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	a.mu.Lock()
	a.validateCalls++
	a.mu.Unlock()
	return a.validateOK, a.validateErr
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executeCalls
}

// fixture wires a router over in-memory stores and a real vault.
type fixture struct {
	store    *credential.MemoryStore
	vault    *vault.Vault
	registry *Registry
	sink     *MemoryAttemptLog
	router   *Router
}

func testCatalog() *Catalog {
	return NewCatalog([]ProviderInfo{
		{Name: "alpha", Category: "payments", CredentialFields: []string{"api_key"}, Enabled: true},
		{Name: "beta", Category: "payments", CredentialFields: []string{"api_key"}, Enabled: true},
		{Name: "gamma", Category: "payments", CredentialFields: []string{"api_key"}, Enabled: false},
		{Name: "delta", Category: "communications", CredentialFields: []string{"api_key"}, Enabled: true},
	})
}

func newFixture(t *testing.T, opts ...RouterOption) *fixture {
	t.Helper()

	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)

	v, err := vault.New(masterKey)
	require.NoError(t, err)

	store := credential.NewMemoryStore()
	registry := NewRegistry()
	sink := NewMemoryAttemptLog()

	opts = append([]RouterOption{WithAttemptSink(sink)}, opts...)
	r := New(store, store, v, registry, testCatalog(), opts...)

	return &fixture{
		store:    store,
		vault:    v,
		registry: registry,
		sink:     sink,
		router:   r,
	}
}

// seedCredential encrypts and saves a credential record.
func (f *fixture) seedCredential(t *testing.T, userID, provider string, env credential.Environment) {
	t.Helper()

	blob, err := f.vault.Encrypt(map[string]string{"api_key": "key-" + provider})
	require.NoError(t, err)

	err = f.store.Save(context.Background(), &credential.Record{
		UserID:      userID,
		Provider:    provider,
		Environment: env,
		Ciphertext:  blob,
	})
	require.NoError(t, err)
}

func paymentRequest() Request {
	return Request{
		Category:    "payments",
		Action:      "charge",
		UserID:      "user-1",
		Environment: credential.EnvTest,
		Params:      map[string]any{"amount": 100},
	}
}

func TestRouter_ExecuteWithFallback_FirstProviderSucceeds(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)

	adapter := &fakeAdapter{data: map[string]any{"id": "ch_1"}}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return adapter, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "alpha", result.Provider)
	assert.Equal(t, credential.EnvTest, result.Environment)
	assert.Equal(t, map[string]any{"id": "ch_1"}, result.Data)
	assert.Equal(t, 1, adapter.calls())

	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "alpha", result.Attempts[0].Provider)
	assert.True(t, result.Attempts[0].Success)
}

// TestRouter_ExecuteWithFallback_FallsBack verifies the fallback path:
// the first provider fails, the second succeeds, and the attempt log
// records exactly one failure then one success.
func TestRouter_ExecuteWithFallback_FallsBack(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	failing := &fakeAdapter{executeErr: errors.New("card declined upstream")}
	succeeding := &fakeAdapter{data: map[string]any{"id": "ch_2"}}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return failing, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return succeeding, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "beta", result.Provider)
	assert.Equal(t, 1, failing.calls())
	assert.Equal(t, 1, succeeding.calls())

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "alpha", result.Attempts[0].Provider)
	assert.False(t, result.Attempts[0].Success)
	assert.Contains(t, result.Attempts[0].Err, "card declined")
	assert.Equal(t, "beta", result.Attempts[1].Provider)
	assert.True(t, result.Attempts[1].Success)

	// The sink saw the same sequence.
	logged := f.sink.Attempts()
	require.Len(t, logged, 2)
	assert.Equal(t, "alpha", logged[0].Provider)
	assert.Equal(t, "beta", logged[1].Provider)
}

func TestRouter_ExecuteWithFallback_AllFail(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	alphaErr := errors.New("alpha down")
	betaErr := errors.New("beta down")
	alpha := &fakeAdapter{executeErr: alphaErr}
	beta := &fakeAdapter{executeErr: betaErr}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return alpha, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	_, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllProvidersFailed))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "beta", exhausted.LastProvider)
	assert.ErrorIs(t, err, betaErr)

	// One failed attempt per provider, none retried.
	assert.Equal(t, 1, alpha.calls())
	assert.Equal(t, 1, beta.calls())
	assert.Len(t, f.sink.Attempts(), 2)
}

// TestRouter_ExecuteWithFallback_NoProviders verifies the empty case is
// distinguishable from exhaustion.
func TestRouter_ExecuteWithFallback_NoProviders(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProvidersConfigured))
	assert.False(t, errors.Is(err, ErrAllProvidersFailed))
}

func TestRouter_ExecuteWithFallback_PriorityOrder(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	// Beta outranks alpha.
	err := f.store.SetPriorities(context.Background(), "user-1", "payments", map[string]int{
		"alpha": 2,
		"beta":  1,
	})
	require.NoError(t, err)

	alpha := &fakeAdapter{}
	beta := &fakeAdapter{}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return alpha, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "beta", result.Provider)
	assert.Equal(t, 0, alpha.calls())
}

// TestRouter_ExecuteWithFallback_CrossEnvironment verifies that a
// provider holding only opposite-environment credentials is still a
// candidate, and the result reports which environment actually served.
func TestRouter_ExecuteWithFallback_CrossEnvironment(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvLive)

	adapter := &fakeAdapter{}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return adapter, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "alpha", result.Provider)
	assert.Equal(t, credential.EnvLive, result.Environment)
}

func TestRouter_ExecuteWithFallback_PreferredEnvironmentWins(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvLive)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)

	adapter := &fakeAdapter{}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return adapter, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, credential.EnvTest, result.Environment)
}

func TestRouter_ExecuteWithFallback_SkipsDisabledProvider(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "gamma", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	gamma := &fakeAdapter{}
	beta := &fakeAdapter{}
	f.registry.Register("gamma", func(map[string]string) (Adapter, error) { return gamma, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "beta", result.Provider)
	assert.Equal(t, 0, gamma.calls())
}

func TestRouter_ExecuteWithFallback_SkipsUnregisteredAdapter(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	// Only beta has an adapter.
	beta := &fakeAdapter{}
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, "beta", result.Provider)
}

// TestRouter_ExecuteWithFallback_UnreadableCredentials verifies that a
// corrupt ciphertext is reported as a failed attempt without exposing
// cryptographic detail, and the loop proceeds to the next provider.
func TestRouter_ExecuteWithFallback_UnreadableCredentials(t *testing.T) {
	f := newFixture(t)

	// Alpha's blob is garbage; beta's is valid.
	err := f.store.Save(context.Background(), &credential.Record{
		UserID:      "user-1",
		Provider:    "alpha",
		Environment: credential.EnvTest,
		Ciphertext:  []byte("not a valid blob at all"),
	})
	require.NoError(t, err)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	alpha := &fakeAdapter{}
	beta := &fakeAdapter{}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return alpha, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	result, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "beta", result.Provider)
	assert.Equal(t, 0, alpha.calls())

	require.Len(t, result.Attempts, 2)
	assert.False(t, result.Attempts[0].Success)
	assert.Contains(t, result.Attempts[0].Err, "unreadable")

	// Only unreadable alpha failing surfaces the masked error.
	require.NoError(t, f.store.Deactivate(context.Background(), "user-1", "beta", credential.EnvTest))
	_, err = f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	assert.ErrorIs(t, err, ErrCredentialsUnreadable)
}

// TestRouter_ExecuteWithFallback_Cancellation verifies that no new
// attempt starts after the caller cancels.
func TestRouter_ExecuteWithFallback_Cancellation(t *testing.T) {
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	ctx, cancel := context.WithCancel(context.Background())

	alpha := &fakeAdapter{
		executeErr: errors.New("alpha down"),
		onExecute:  func(context.Context) { cancel() },
	}
	beta := &fakeAdapter{}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return alpha, nil })
	f.registry.Register("beta", func(map[string]string) (Adapter, error) { return beta, nil })

	_, err := f.router.ExecuteWithFallback(ctx, paymentRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, alpha.calls())
	assert.Equal(t, 0, beta.calls())
}

func TestRouter_ExecuteWithFallback_AttemptTimeout(t *testing.T) {
	f := newFixture(t, WithAttemptTimeout(20*time.Millisecond))
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)

	slow := &fakeAdapter{
		onExecute:  func(ctx context.Context) { <-ctx.Done() },
		executeErr: context.DeadlineExceeded,
	}
	f.registry.Register("alpha", func(map[string]string) (Adapter, error) { return slow, nil })

	_, err := f.router.ExecuteWithFallback(context.Background(), paymentRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllProvidersFailed))
}

func TestRouter_Providers_Ordering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "beta", credential.EnvTest)

	// No explicit priorities: name order.
	providers, err := f.router.Providers(ctx, "payments", "user-1", credential.EnvTest)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, providers)

	// Explicit priorities reorder.
	require.NoError(t, f.store.SetPriorities(ctx, "user-1", "payments", map[string]int{
		"alpha": 5,
		"beta":  1,
	}))
	providers, err = f.router.Providers(ctx, "payments", "user-1", credential.EnvTest)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "alpha"}, providers)
}

func TestRouter_Providers_ExcludesOtherCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvTest)
	f.seedCredential(t, "user-1", "delta", credential.EnvTest)

	providers, err := f.router.Providers(ctx, "payments", "user-1", credential.EnvTest)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, providers)

	providers, err = f.router.Providers(ctx, "communications", "user-1", credential.EnvTest)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta"}, providers)
}

func TestRouter_Credentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedCredential(t, "user-1", "alpha", credential.EnvLive)

	// Preferred environment missing: falls back to the opposite.
	creds, env, err := f.router.Credentials(ctx, "user-1", "alpha", credential.EnvTest)
	require.NoError(t, err)
	assert.Equal(t, credential.EnvLive, env)
	assert.Equal(t, "key-alpha", creds["api_key"])

	// No record in either environment: empty map, no error.
	creds, _, err = f.router.Credentials(ctx, "user-1", "beta", credential.EnvTest)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Registered("alpha"))

	r.Register("alpha", func(map[string]string) (Adapter, error) {
		return &fakeAdapter{}, nil
	})
	assert.True(t, r.Registered("alpha"))

	adapter, err := r.New("alpha", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	_, err = r.New("unknown", nil)
	assert.ErrorIs(t, err, ErrAdapterNotRegistered)
}

func TestCatalog(t *testing.T) {
	c := testCatalog()

	payments := c.Providers("payments")
	require.Len(t, payments, 3)
	assert.Equal(t, "alpha", payments[0].Name)
	assert.Equal(t, "beta", payments[1].Name)
	assert.Equal(t, "gamma", payments[2].Name)

	info, ok := c.Lookup("gamma")
	require.True(t, ok)
	assert.False(t, info.Enabled)

	_, ok = c.Lookup("unknown")
	assert.False(t, ok)

	assert.Empty(t, c.Providers("unknown-category"))
}
