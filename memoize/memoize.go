package memoize

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/notargets/gotidal/types"
)

// KeyStrategy decides how a control vector becomes a cache key
type KeyStrategy uint8

const (
	// IdentityKeys keeps the exact vector, suited to short per-turbine control vectors
	IdentityKeys KeyStrategy = iota
	// HashedKeys keeps a SHA-256 of the vector only, bounding memory for field sized vectors
	HashedKeys
)

func (ks KeyStrategy) String() string {
	switch ks {
	case IdentityKeys:
		return "IdentityKeys"
	case HashedKeys:
		return "HashedKeys"
	}
	return fmt.Sprintf("KeyStrategy(%d)", uint8(ks))
}

// Func is an expensive function of a vector, opts are part of the cache key
type Func[O comparable, R any] func(m []float64, opts O) (R, error)

// Record is one cached evaluation; Vector is nil under HashedKeys
type Record[O comparable, R any] struct {
	Key    string
	Vector []float64
	Opts   O
	Result R
}

type recordKey[O comparable] struct {
	key  string
	opts O
}

type image[O comparable, R any] struct {
	Strategy KeyStrategy
	Records  []Record[O, R]
}

/*
Memoizer evaluates its function at most once per distinct (vector, opts) pair. Keys compare
the bit patterns of the vector exactly, there is no tolerance. Records are only ever removed
by Clear. A Memoizer is not safe for concurrent use.
*/
type Memoizer[O comparable, R any] struct {
	f           Func[O, R]
	strategy    KeyStrategy
	records     map[recordKey[O]]int // index into order
	order       []Record[O, R]
	evaluations int
}

func New[O comparable, R any](f Func[O, R], strategy KeyStrategy) *Memoizer[O, R] {
	return &Memoizer[O, R]{
		f:        f,
		strategy: strategy,
		records:  make(map[recordKey[O]]int),
	}
}

func (mz *Memoizer[O, R]) Strategy() KeyStrategy { return mz.strategy }

// Len is the number of stored records
func (mz *Memoizer[O, R]) Len() int { return len(mz.order) }

// Evaluations counts the calls made to the wrapped function, failed ones included
func (mz *Memoizer[O, R]) Evaluations() int { return mz.evaluations }

// Key is the cache key of a vector under the memoizer's strategy
func (mz *Memoizer[O, R]) Key(m []float64) string {
	var (
		buf = make([]byte, 8*len(m))
	)
	for i, val := range m {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(val))
	}
	if mz.strategy == HashedKeys {
		sum := sha256.Sum256(buf)
		return hex.EncodeToString(sum[:])
	}
	return string(buf)
}

func (mz *Memoizer[O, R]) HasCache(m []float64, opts O) bool {
	_, ok := mz.records[recordKey[O]{mz.Key(m), opts}]
	return ok
}

// Call returns the stored result for (m, opts), evaluating and storing it on a miss. A failed
// evaluation stores nothing.
func (mz *Memoizer[O, R]) Call(m []float64, opts O) (r R, err error) {
	var (
		rk = recordKey[O]{mz.Key(m), opts}
	)
	if ind, ok := mz.records[rk]; ok {
		return mz.order[ind].Result, nil
	}
	mz.evaluations++
	if r, err = mz.f(m, opts); err != nil {
		return
	}
	rec := Record[O, R]{Key: rk.key, Opts: opts, Result: r}
	if mz.strategy == IdentityKeys {
		rec.Vector = make([]float64, len(m))
		copy(rec.Vector, m)
	}
	mz.records[rk] = len(mz.order)
	mz.order = append(mz.order, rec)
	return
}

// Records returns the stored records in insertion order
func (mz *Memoizer[O, R]) Records() []Record[O, R] {
	out := make([]Record[O, R], len(mz.order))
	copy(out, mz.order)
	return out
}

func (mz *Memoizer[O, R]) Clear() {
	mz.records = make(map[recordKey[O]]int)
	mz.order = nil
}

// Save writes every record as a gob image
func (mz *Memoizer[O, R]) Save(w io.Writer) (err error) {
	img := image[O, R]{Strategy: mz.strategy, Records: mz.order}
	if err = gob.NewEncoder(w).Encode(img); err != nil {
		err = fmt.Errorf("unable to encode %d cache records: %w", len(mz.order), err)
	}
	return
}

// Load restores a gob image written by Save. Loading into a memoizer that already holds records
// fails with ErrCheckpointConflict, records are never merged.
func (mz *Memoizer[O, R]) Load(r io.Reader) (err error) {
	var (
		img image[O, R]
	)
	if mz.Len() != 0 {
		return fmt.Errorf("%w: holds %d records", types.ErrCheckpointConflict, mz.Len())
	}
	if err = gob.NewDecoder(r).Decode(&img); err != nil {
		return fmt.Errorf("unable to decode cache records: %w", err)
	}
	if img.Strategy != mz.strategy {
		return fmt.Errorf("cache image uses %v, memoizer uses %v", img.Strategy, mz.strategy)
	}
	for _, rec := range img.Records {
		rk := recordKey[O]{rec.Key, rec.Opts}
		if _, dup := mz.records[rk]; dup {
			mz.Clear()
			return fmt.Errorf("cache image holds a duplicate record for key %q", rec.Key)
		}
		mz.records[rk] = len(mz.order)
		mz.order = append(mz.order, rec)
	}
	return
}
