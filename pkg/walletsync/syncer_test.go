package walletsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/monopay/pkg/blockchain"
)

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]uint64
	balanceErr error
	block      chan struct{}
	sigs       []blockchain.SignatureInfo
	failDetail map[string]bool
	detailAt   []time.Time
	entered    chan struct{}
	calls      int
}

func (f *fakeLedger) GetBalance(_ context.Context, address string) (*blockchain.BalanceInfo, error) {
	f.mu.Lock()
	f.calls++
	block, entered, err := f.block, f.entered, f.balanceErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &blockchain.BalanceInfo{Address: address, Lamports: f.balances[address]}, nil
}

func (f *fakeLedger) RecentSignatures(_ context.Context, _ string, limit int) ([]blockchain.SignatureInfo, error) {
	if limit < len(f.sigs) {
		return f.sigs[:limit], nil
	}
	return f.sigs, nil
}

func (f *fakeLedger) TransactionDetail(_ context.Context, sig, owner string) (*blockchain.TransactionRecord, error) {
	f.mu.Lock()
	f.detailAt = append(f.detailAt, time.Now())
	f.mu.Unlock()
	if f.failDetail[sig] {
		return nil, errors.New("429 too many requests")
	}
	return &blockchain.TransactionRecord{Signature: sig, Direction: blockchain.DirectionIn, Status: "confirmed"}, nil
}

func sigs(names ...string) []blockchain.SignatureInfo {
	out := make([]blockchain.SignatureInfo, len(names))
	for i, n := range names {
		out[i] = blockchain.SignatureInfo{Signature: n, ConfirmationStatus: "finalized"}
	}
	return out
}

func TestRunOnce_SkipsFailedDetail(t *testing.T) {
	ledger := &fakeLedger{
		balances:   map[string]uint64{"A": 10},
		sigs:       sigs("s1", "s2", "s3"),
		failDetail: map[string]bool{"s2": true},
	}
	s := New(ledger, WithDetailDelay(0))
	s.SetActive("A")

	require.NoError(t, s.RunOnce(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, uint64(10), snap.Balance.Lamports)
	require.Len(t, snap.Transactions, 2)
	assert.Equal(t, "s1", snap.Transactions[0].Signature)
	assert.Equal(t, "finalized", snap.Transactions[0].Status)
	assert.Equal(t, "s3", snap.Transactions[1].Signature)
	assert.Equal(t, 1, snap.Skipped)
}

func TestRunOnce_BoundedSignatureCount(t *testing.T) {
	ledger := &fakeLedger{sigs: sigs("a", "b", "c", "d", "e", "f", "g")}
	s := New(ledger, WithDetailDelay(0))
	s.SetActive("A")

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, s.Snapshot().Transactions, DefaultSignatureLimit)
}

func TestRunOnce_BalanceFailureKeepsLastValue(t *testing.T) {
	ledger := &fakeLedger{balances: map[string]uint64{"A": 42}}
	s := New(ledger, WithDetailDelay(0))
	s.SetActive("A")
	require.NoError(t, s.RunOnce(context.Background()))

	ledger.mu.Lock()
	ledger.balanceErr = errors.New("rpc down")
	ledger.mu.Unlock()
	require.NoError(t, s.RunOnce(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Balance)
	assert.Equal(t, uint64(42), snap.Balance.Lamports)
	assert.True(t, snap.BalanceStale)
}

func TestRunOnce_DoesNotOverlap(t *testing.T) {
	ledger := &fakeLedger{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := New(ledger, WithDetailDelay(0))
	s.SetActive("A")

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-ledger.entered

	assert.ErrorIs(t, s.RunOnce(context.Background()), ErrBusy)

	close(ledger.block)
	require.NoError(t, <-done)
}

func TestRunOnce_DiscardsResultsForPreviousWallet(t *testing.T) {
	ledger := &fakeLedger{
		balances: map[string]uint64{"A": 1, "B": 2},
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := New(ledger, WithDetailDelay(0))
	s.SetActive("A")

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-ledger.entered

	s.SetActive("B")
	close(ledger.block)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := s.Snapshot()
	assert.Equal(t, "B", snap.Address)
	assert.Nil(t, snap.Balance)
}

func TestRunOnce_SpacesDetailRequests(t *testing.T) {
	ledger := &fakeLedger{sigs: sigs("a", "b", "c")}
	s := New(ledger, WithDetailDelay(40*time.Millisecond))
	s.SetActive("A")

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, ledger.detailAt, 3)
	assert.GreaterOrEqual(t, ledger.detailAt[2].Sub(ledger.detailAt[0]), 70*time.Millisecond)
}

func TestStart_ImmediateRunOnActivation(t *testing.T) {
	ledger := &fakeLedger{balances: map[string]uint64{"A": 7}}
	s := New(ledger, WithInterval(time.Hour), WithDetailDelay(0))

	updates := make(chan Snapshot, 4)
	s.OnUpdate(func(snap Snapshot) { updates <- snap })

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.SetActive("A")

	select {
	case snap := <-updates:
		assert.Equal(t, "A", snap.Address)
		assert.Equal(t, uint64(7), snap.Balance.Lamports)
	case <-time.After(2 * time.Second):
		t.Fatal("no sync after activation")
	}

	s.Trigger()
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no sync after trigger")
	}

	cancel()
	s.Wait()
}

func (f *fakeLedger) balanceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSpawn_BusyRun(t *testing.T) {
	tests := []struct {
		name     string
		explicit bool
		want     int
	}{
		{"timer tick is skipped", false, 1},
		{"explicit trigger runs after", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{block: make(chan struct{}), entered: make(chan struct{}, 1)}
			s := New(ledger, WithDetailDelay(0))
			s.SetActive("A")
			ctx := context.Background()

			done := make(chan error, 1)
			go func() { done <- s.RunOnce(ctx) }()
			<-ledger.entered

			s.spawn(ctx, tt.explicit)
			s.Wait()

			close(ledger.block)
			require.NoError(t, <-done)
			assert.Equal(t, tt.want, ledger.balanceCalls())
		})
	}
}
