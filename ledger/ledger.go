// Package ledger provides the reference custody ledger: holding accounts
// persisted in a key-value store with atomic multi-transfer scopes.
// Deployments that settle against an external custodian implement the same
// interface and leave this package to tests and single-node setups.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/types"
	"nftmarket/native/market"
	"nftmarket/storage"
)

var accountPrefix = []byte("ledger/account/")

// Ledger implements market.CustodyLedger on top of a storage.Database.
type Ledger struct {
	mu sync.Mutex
	db storage.Database

	// txMu guards tx, the transactional view active while Atomic runs.
	// Writes arriving through StateDB during that window join the view
	// and commit (or roll back) with it.
	txMu sync.Mutex
	tx   *storage.TxDB
}

// New constructs a ledger over the supplied database.
func New(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

func loadAccount(kv storage.KV, addr [20]byte) (*types.Account, bool, error) {
	raw, err := kv.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(raw, account); err != nil {
		return nil, false, fmt.Errorf("ledger: decode account: %w", err)
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, true, nil
}

func storeAccount(kv storage.KV, addr [20]byte, account *types.Account) error {
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("ledger: encode account: %w", err)
	}
	return kv.Put(accountKey(addr), encoded)
}

func (l *Ledger) setTx(tx *storage.TxDB) {
	l.txMu.Lock()
	l.tx = tx
	l.txMu.Unlock()
}

func (l *Ledger) scope() storage.KV {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	if l.tx != nil {
		return l.tx
	}
	return l.db
}

// StateDB returns a key-value view whose writes join any atomic custody
// scope active on the ledger. Record stores wired through this view commit
// and roll back together with the fund movements of the same operation.
// Reads always observe committed state, so concurrent readers never see an
// open scope's uncommitted writes.
func (l *Ledger) StateDB() storage.KV {
	return scopeKV{l: l}
}

type scopeKV struct {
	l *Ledger
}

func (s scopeKV) Put(key []byte, value []byte) error { return s.l.scope().Put(key, value) }
func (s scopeKV) Get(key []byte) ([]byte, error)     { return s.l.db.Get(key) }
func (s scopeKV) Has(key []byte) (bool, error)       { return s.l.db.Has(key) }
func (s scopeKV) Delete(key []byte) error            { return s.l.scope().Delete(key) }

// Balance returns the current committed balance of a holding account.
// Unknown accounts report zero.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok, err := loadAccount(l.db, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(account.Balance), nil
}

// Mint credits newly issued units to a holding account. Used to seed
// genesis balances and test fixtures; real deposits arrive through
// whatever on/off ramp fronts the deployment.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok, err := loadAccount(l.db, addr)
	if err != nil {
		return err
	}
	if !ok {
		account = &types.Account{Balance: big.NewInt(0)}
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return storeAccount(l.db, addr, account)
}

// Transfer implements market.CustodyLedger as a single-transfer scope.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	return l.Atomic(func(view market.CustodyLedger) error {
		return view.Transfer(from, to, amount)
	})
}

// Atomic implements market.CustodyLedger. The closure runs against a
// transactional view; every write it makes, including record mutations
// routed through StateDB, reaches the database in one batch only if the
// closure returns nil. A failure anywhere inside leaves every holding and
// record untouched.
func (l *Ledger) Atomic(fn func(market.CustodyLedger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := storage.NewTxDB(l.db)
	l.setTx(tx)
	defer l.setTx(nil)
	if err := fn(scopedView{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// scopedView is the CustodyLedger handed to Atomic closures. All of its
// reads and writes go through the scope's transactional view.
type scopedView struct {
	tx *storage.TxDB
}

func (v scopedView) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAccount, ok, err := loadAccount(v.tx, from)
	if err != nil {
		return err
	}
	if !ok {
		return market.ErrAccountNotFound
	}
	if fromAccount.Balance.Cmp(amount) < 0 {
		return market.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	toAccount, ok, err := loadAccount(v.tx, to)
	if err != nil {
		return err
	}
	if !ok {
		toAccount = &types.Account{Balance: big.NewInt(0)}
	}
	fromAccount.Balance = new(big.Int).Sub(fromAccount.Balance, amount)
	toAccount.Balance = new(big.Int).Add(toAccount.Balance, amount)
	fromAccount.Nonce++
	if err := storeAccount(v.tx, from, fromAccount); err != nil {
		return err
	}
	return storeAccount(v.tx, to, toAccount)
}

// Atomic on a scoped view just nests: the enclosing scope already provides
// the transactional boundary.
func (v scopedView) Atomic(fn func(market.CustodyLedger) error) error {
	return fn(v)
}
