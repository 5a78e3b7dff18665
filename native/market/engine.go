package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilLedger   = errors.New("market engine: custody ledger not configured")
	errNilRegistry = errors.New("market engine: metadata registry not configured")
)

// engineState is the record storage consumed by the engine. Records are
// resolved by identifier as an explicit input to each operation; the
// settlement math never touches storage.
type engineState interface {
	ListingPut(*Listing) error
	ListingGet(id [32]byte) (*Listing, bool)
	ListingDelete(id [32]byte) error
	BidPut(*Bid) error
	BidGet(id [32]byte) (*Bid, bool)
	BidDelete(id [32]byte) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine owns the listing and bid lifecycle state machines and orchestrates
// settlements through the custody ledger. Every operation is a synchronous
// compute-then-commit step: validation first, then all fund and asset moves
// inside one atomic ledger scope together with the record mutation, then a
// single event emission. A failed commit leaves every record and holding
// exactly as it was.
type Engine struct {
	state         engineState
	ledger        CustodyLedger
	registry      MetadataRegistry
	emitter       events.Emitter
	feeCollector  [20]byte
	recordReserve *big.Int
	nowFn         func() int64
}

// NewEngine creates a market engine with a no-op emitter and a zero record
// reserve. Callers wire the collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		recordReserve: big.NewInt(0),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the record storage used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the custody ledger used for all fund and asset
// moves.
func (e *Engine) SetLedger(ledger CustodyLedger) { e.ledger = ledger }

// SetRegistry configures the metadata registry that supplies creator
// royalty shares.
func (e *Engine) SetRegistry(registry MetadataRegistry) { e.registry = registry }

// SetFeeCollector configures the address that receives the marketplace
// share of the platform fee.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetRecordReserve configures the storage reserve charged per record. The
// reserve moves from the record owner to the reserve pool on creation and
// is released to a nominated recipient when the record is destroyed. A nil
// or zero reserve disables the mechanism.
func (e *Engine) SetRecordReserve(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		e.recordReserve = big.NewInt(0)
		return
	}
	e.recordReserve = new(big.Int).Set(amount)
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) creators(asset [32]byte) ([]Creator, error) {
	if e.registry == nil {
		return nil, errNilRegistry
	}
	return e.registry.Creators(asset)
}

// chargeReserve moves the record storage reserve from the owner into the
// pool at creation time.
func (e *Engine) chargeReserve(ledger CustodyLedger, owner [20]byte) error {
	if e.recordReserve.Sign() == 0 {
		return nil
	}
	if err := ledger.Transfer(owner, ReservePoolAddress(), e.recordReserve); err != nil {
		return fmt.Errorf("%w: record reserve: %w", ErrCustodyTransfer, err)
	}
	return nil
}

// releaseReserve returns a destroyed record's storage reserve to the
// nominated recipient.
func (e *Engine) releaseReserve(ledger CustodyLedger, recipient [20]byte) error {
	if e.recordReserve.Sign() == 0 {
		return nil
	}
	if err := ledger.Transfer(ReservePoolAddress(), recipient, e.recordReserve); err != nil {
		return fmt.Errorf("%w: reserve release: %w", ErrCustodyTransfer, err)
	}
	return nil
}

func wrapTransfer(context string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCustodyTransfer, context, err)
}
