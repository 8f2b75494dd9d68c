package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/monopay/pkg/api"
)

type fakeLookup struct {
	mu      sync.Mutex
	wallets map[string]string
	gates   map[string]chan struct{}
	calls   []string
	err     error
}

func (f *fakeLookup) ResolveHandle(_ context.Context, handle string) (*api.HandleResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, handle)
	gate := f.gates[handle]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.wallets[handle]
	if !ok {
		return nil, &api.HTTPError{StatusCode: 404, Code: api.CodeNotFound, Message: "handle not found"}
	}
	return &api.HandleResponse{Handle: handle, Wallet: w}, nil
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type names map[string]string

func (n names) SavedName(a string) (string, bool) { v, ok := n[a]; return v, ok }

func randomAddress(t *testing.T) string {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey().String()
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"@Priya", "priya@monopay.app", true},
		{"priya@monopay.app", "priya@monopay.app", true},
		{" rahul.k_9 ", "rahul.k_9@monopay.app", true},
		{"ab", "", false},
		{"@has-dash", "", false},
		{"name@other.app", "", false},
		{"abcdefghijklmnopqrstuvwxyz0123456", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeHandle(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScanned(t *testing.T) {
	addr := randomAddress(t)

	s, err := ParseScanned("solana:" + addr + "?amount=250.5&label=Chai%20Stall")
	require.NoError(t, err)
	assert.Equal(t, Scanned{Recipient: addr, Amount: 250.5, HasAmount: true, Label: "Chai Stall", IsAddress: true}, s)

	s, err = ParseScanned(addr)
	require.NoError(t, err)
	assert.True(t, s.IsAddress)
	assert.False(t, s.HasAmount)

	s, err = ParseScanned("@Priya")
	require.NoError(t, err)
	assert.Equal(t, "priya@monopay.app", s.Recipient)
	assert.False(t, s.IsAddress)

	for _, bad := range []string{"", "solana:notanaddress", "solana:" + addr + "?amount=-1", "!!"} {
		_, err := ParseScanned(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	priya := randomAddress(t)
	saved := randomAddress(t)
	lookup := &fakeLookup{wallets: map[string]string{"priya@monopay.app": priya}}
	r := New(lookup, WithNames(names{saved: "Mom"}))

	res, err := r.Resolve(ctx, "@priya")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, priya, res.Address)
	assert.Equal(t, "@priya", res.DisplayName)

	res, err = r.Resolve(ctx, "@ghost")
	require.NoError(t, err)
	assert.Equal(t, StatusUnverified, res.Status)

	res, err = r.Resolve(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "Mom", res.DisplayName)

	before := lookup.callCount()
	res, err = r.Resolve(ctx, "@pr")
	require.NoError(t, err)
	assert.Equal(t, StatusTooShort, res.Status)
	assert.Equal(t, before, lookup.callCount())
}

func TestResolve_NetworkErrorIsNotUnverified(t *testing.T) {
	r := New(&fakeLookup{err: api.ErrTimeout})
	res, err := r.Resolve(context.Background(), "@priya")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrTimeout))
	assert.NotEqual(t, StatusUnverified, res.Status)
}

func TestSubmit_LastIssuedWins(t *testing.T) {
	priya := randomAddress(t)
	priyanka := randomAddress(t)
	release := make(chan struct{})
	lookup := &fakeLookup{
		wallets: map[string]string{
			"priya@monopay.app":    priya,
			"priyanka@monopay.app": priyanka,
		},
		gates: map[string]chan struct{}{"priya@monopay.app": release},
	}
	r := New(lookup)

	var mu sync.Mutex
	var delivered []Result
	r.OnResult(func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, res)
	})

	ctx := context.Background()
	first := r.Submit(ctx, "@priya")
	require.Eventually(t, func() bool { return lookup.callCount() == 1 }, time.Second, time.Millisecond)

	second := r.Submit(ctx, "@priyanka")
	require.Greater(t, second, first)
	require.Eventually(t, func() bool { return r.Latest().Seq == second }, time.Second, time.Millisecond)

	close(release)
	r.Wait()

	latest := r.Latest()
	assert.Equal(t, priyanka, latest.Address)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1)
	assert.Equal(t, second, delivered[0].Seq)
}

func TestSubmit_DebounceSkipsSuperseded(t *testing.T) {
	lookup := &fakeLookup{wallets: map[string]string{"priyanka@monopay.app": randomAddress(t)}}
	r := New(lookup, WithDebounce(50*time.Millisecond))

	ctx := context.Background()
	r.Submit(ctx, "@pri")
	r.Submit(ctx, "@priy")
	r.Submit(ctx, "@priyanka")
	r.Wait()

	assert.Equal(t, 1, lookup.callCount())
	assert.Equal(t, "@priyanka", r.Latest().Input)
}
