package ledger

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/native/market"
	"nftmarket/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestMintAndBalance(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)

	balance, err := l.Balance(alice)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, l.Mint(alice, big.NewInt(500)))
	require.NoError(t, l.Mint(alice, big.NewInt(250)))

	balance, err = l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(750), balance)
}

func TestMintRejectsNonPositive(t *testing.T) {
	l := New(storage.NewMemDB())
	require.Error(t, l.Mint(addr(1), nil))
	require.Error(t, l.Mint(addr(1), big.NewInt(0)))
	require.Error(t, l.Mint(addr(1), big.NewInt(-5)))
}

func TestTransfer(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(40)))

	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), aliceBal)
	bobBal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(40), bobBal)
}

func TestTransferMissingSource(t *testing.T) {
	l := New(storage.NewMemDB())
	err := l.Transfer(addr(1), addr(2), big.NewInt(1))
	require.ErrorIs(t, err, market.ErrAccountNotFound)
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	require.NoError(t, l.Mint(alice, big.NewInt(10)))
	err := l.Transfer(alice, addr(2), big.NewInt(11))
	require.ErrorIs(t, err, market.ErrInsufficientFunds)

	balance, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), balance)
}

func TestTransferZeroIsNoop(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	require.NoError(t, l.Mint(alice, big.NewInt(10)))
	require.NoError(t, l.Transfer(alice, addr(2), big.NewInt(0)))

	balance, err := l.Balance(addr(2))
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestAtomicCommitsOnSuccess(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	bob := addr(2)
	carol := addr(3)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(30)); err != nil {
			return err
		}
		return view.Transfer(alice, carol, big.NewInt(20))
	})
	require.NoError(t, err)

	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), aliceBal)
	bobBal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(30), bobBal)
	carolBal, err := l.Balance(carol)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20), carolBal)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(90)); err != nil {
			return err
		}
		return view.Transfer(alice, bob, big.NewInt(90))
	})
	require.ErrorIs(t, err, market.ErrInsufficientFunds)

	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), aliceBal)
	bobBal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Zero(t, bobBal.Sign())
}

func TestAtomicRollsBackOnPanicFreeFailure(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	sentinel := fmt.Errorf("record write failed")
	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(40)); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), aliceBal)
}

// failingDB delegates to a real database but returns batches whose Write
// always fails, modelling a storage fault at commit time.
type failingDB struct {
	storage.Database
	failBatch bool
}

func (f *failingDB) NewBatch() storage.Batch {
	if f.failBatch {
		return failingBatch{}
	}
	return f.Database.NewBatch()
}

type failingBatch struct{}

func (failingBatch) Put(key []byte, value []byte) error { return nil }
func (failingBatch) Delete(key []byte) error            { return nil }
func (failingBatch) Write() error                       { return fmt.Errorf("disk full") }

func TestAtomicCommitFailurePersistsNothing(t *testing.T) {
	db := &failingDB{Database: storage.NewMemDB()}
	l := New(db)
	alice := addr(1)
	bob := addr(2)
	carol := addr(3)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	db.failBatch = true
	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(30)); err != nil {
			return err
		}
		return view.Transfer(alice, carol, big.NewInt(20))
	})
	require.Error(t, err)

	db.failBatch = false
	for account, want := range map[[20]byte]*big.Int{
		alice: big.NewInt(100),
		bob:   big.NewInt(0),
		carol: big.NewInt(0),
	} {
		balance, err := l.Balance(account)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(want), "account %x", account)
	}
}

func TestStateWritesJoinAtomicScope(t *testing.T) {
	db := storage.NewMemDB()
	l := New(db)
	state := l.StateDB()
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	key := []byte("record")
	abort := fmt.Errorf("record rejected")
	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(40)); err != nil {
			return err
		}
		if err := state.Put(key, []byte("v1")); err != nil {
			return err
		}
		return abort
	})
	require.ErrorIs(t, err, abort)

	has, err := db.Has(key)
	require.NoError(t, err)
	require.False(t, has)
	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), aliceBal)

	err = l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(40)); err != nil {
			return err
		}
		return state.Put(key, []byte("v1"))
	})
	require.NoError(t, err)

	stored, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), stored)
	bobBal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(40), bobBal)
}

func TestStateWritesDiscardedOnCommitFailure(t *testing.T) {
	db := &failingDB{Database: storage.NewMemDB()}
	l := New(db)
	state := l.StateDB()
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	db.failBatch = true
	key := []byte("record")
	err := l.Atomic(func(view market.CustodyLedger) error {
		if err := view.Transfer(alice, bob, big.NewInt(40)); err != nil {
			return err
		}
		return state.Put(key, []byte("v1"))
	})
	require.Error(t, err)

	db.failBatch = false
	has, err := db.Has(key)
	require.NoError(t, err)
	require.False(t, has)
	aliceBal, err := l.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), aliceBal)
}

func TestNestedAtomicSharesScope(t *testing.T) {
	l := New(storage.NewMemDB())
	alice := addr(1)
	bob := addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	err := l.Atomic(func(view market.CustodyLedger) error {
		return view.Atomic(func(inner market.CustodyLedger) error {
			return inner.Transfer(alice, bob, big.NewInt(25))
		})
	})
	require.NoError(t, err)

	bobBal, err := l.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(25), bobBal)
}
