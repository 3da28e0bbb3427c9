// Package balance implements the rune balance sheet: a cached, in-memory
// ledger keyed by rune id, and a pointer-backed view that stages mutations
// into a kvstore.Pointer subtree.
package balance

import (
	"errors"
	"sort"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// ErrArithmetic wraps u128 overflow/underflow as the sheet-level failure
// that aborts the enclosing message.
var ErrArithmetic = errors.New("balance: arithmetic error")

// Sheet is an in-memory map keyed by rune id, ordered on demand by id for
// deterministic iteration. The zero value is an empty sheet.
type Sheet struct {
	balances map[alkaneid.ProtoruneRuneId]u128.Uint128
}

// NewSheet returns an empty cached balance sheet.
func NewSheet() *Sheet {
	return &Sheet{balances: make(map[alkaneid.ProtoruneRuneId]u128.Uint128)}
}

// Get returns the balance for id, or zero if absent.
func (s *Sheet) Get(id alkaneid.ProtoruneRuneId) u128.Uint128 {
	if s.balances == nil {
		return u128.Zero
	}
	return s.balances[id]
}

// Increase adds v to id's balance. Saturating semantics are forbidden: an
// overflow fails with ErrArithmetic and leaves the sheet unchanged.
func (s *Sheet) Increase(id alkaneid.ProtoruneRuneId, v u128.Uint128) error {
	if s.balances == nil {
		s.balances = make(map[alkaneid.ProtoruneRuneId]u128.Uint128)
	}
	sum, err := s.balances[id].Add(v)
	if err != nil {
		return ErrArithmetic
	}
	s.balances[id] = sum
	return nil
}

// Decrease subtracts v from id's balance. Underflow fails the enclosing
// message with ErrArithmetic and leaves the sheet unchanged.
func (s *Sheet) Decrease(id alkaneid.ProtoruneRuneId, v u128.Uint128) error {
	if s.balances == nil {
		return ErrArithmetic
	}
	diff, err := s.balances[id].Sub(v)
	if err != nil {
		return ErrArithmetic
	}
	s.balances[id] = diff
	return nil
}

// ids returns the sheet's populated rune ids in ascending order, for
// deterministic iteration.
func (s *Sheet) ids() []alkaneid.ProtoruneRuneId {
	ids := make([]alkaneid.ProtoruneRuneId, 0, len(s.balances))
	for id := range s.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Ids returns s's populated rune ids in ascending order — exported for
// callers (the view layer) that need to enumerate a sheet's contents
// without already knowing which ids to look for.
func (s *Sheet) Ids() []alkaneid.ProtoruneRuneId { return s.ids() }

// Pipe moves every non-zero entry of s into target via target.Increase,
// then zeroes s. Iteration order is ascending by id for determinism.
func (s *Sheet) Pipe(target *Sheet) error {
	for _, id := range s.ids() {
		v := s.balances[id]
		if v.IsZero() {
			continue
		}
		if err := target.Increase(id, v); err != nil {
			return err
		}
	}
	s.balances = make(map[alkaneid.ProtoruneRuneId]u128.Uint128)
	return nil
}

// Merge combines other into s, summing balances per id.
func (s *Sheet) Merge(other *Sheet) error {
	for _, id := range other.ids() {
		if err := s.Increase(id, other.balances[id]); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether every entry in the sheet is zero.
func (s *Sheet) IsEmpty() bool {
	for _, v := range s.balances {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

const balanceKeyword = "/balances"

// CommitToPointer writes every non-zero entry of s to ptr's balances
// subtree, keyed by the rune id's wire encoding.
func (s *Sheet) CommitToPointer(ptr kvstore.Pointer) {
	sub := ptr.Keyword(balanceKeyword)
	for _, id := range s.ids() {
		v := s.balances[id]
		child := sub.Select(id.Bytes())
		if v.IsZero() {
			child.Set(nil)
			continue
		}
		child.Set(v.Bytes())
	}
}

// ClearOnPointer writes zero for every id s holds to ptr's balances
// subtree, erasing them from persisted storage without touching s itself
// — used to consume a UTXO's persisted rune balance once its edicts have
// redistributed it to the spending transaction's own outputs.
func (s *Sheet) ClearOnPointer(ptr kvstore.Pointer) {
	sub := ptr.Keyword(balanceKeyword)
	for id := range s.balances {
		sub.Select(id.Bytes()).Set(nil)
	}
}

// LoadFromPointer materializes a cached Sheet from ptr's balances subtree.
// idHint lists the rune ids worth checking — the pointer abstraction has no
// native prefix-scan, so callers that don't already know which ids may be
// populated should track membership separately (e.g. via an edict list).
func LoadFromPointer(ptr kvstore.Pointer, idHint []alkaneid.ProtoruneRuneId) (*Sheet, error) {
	sheet := NewSheet()
	sub := ptr.Keyword(balanceKeyword)
	for _, id := range idHint {
		raw := sub.Select(id.Bytes()).Get()
		if len(raw) == 0 {
			continue
		}
		v, err := u128.Parse(raw)
		if err != nil {
			return nil, err
		}
		if err := sheet.Increase(id, v); err != nil {
			return nil, err
		}
	}
	return sheet, nil
}
