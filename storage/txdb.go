package storage

// TxDB stages writes on top of a base database. Reads observe the staged
// state; Commit applies every staged operation to the base in one atomic
// batch. Dropping a TxDB without committing discards its writes. A TxDB is
// not safe for concurrent use.
type TxDB struct {
	base   Database
	staged map[string]stagedValue
}

type stagedValue struct {
	value   []byte
	deleted bool
}

// NewTxDB begins a transactional view over base.
func NewTxDB(base Database) *TxDB {
	return &TxDB{base: base, staged: make(map[string]stagedValue)}
}

func (tx *TxDB) Put(key []byte, value []byte) error {
	tx.staged[string(key)] = stagedValue{value: append([]byte(nil), value...)}
	return nil
}

func (tx *TxDB) Get(key []byte) ([]byte, error) {
	if sv, ok := tx.staged[string(key)]; ok {
		if sv.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), sv.value...), nil
	}
	return tx.base.Get(key)
}

func (tx *TxDB) Has(key []byte) (bool, error) {
	if sv, ok := tx.staged[string(key)]; ok {
		return !sv.deleted, nil
	}
	return tx.base.Has(key)
}

func (tx *TxDB) Delete(key []byte) error {
	tx.staged[string(key)] = stagedValue{deleted: true}
	return nil
}

// Commit applies the staged writes to the base database as one batch.
func (tx *TxDB) Commit() error {
	batch := tx.base.NewBatch()
	for key, sv := range tx.staged {
		if sv.deleted {
			if err := batch.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put([]byte(key), sv.value); err != nil {
			return err
		}
	}
	return batch.Write()
}
