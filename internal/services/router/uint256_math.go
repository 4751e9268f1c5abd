package router

import (
	"math"
	"sync"

	"github.com/holiman/uint256"
)

// Pre-computed constants (avoid allocation on every call)
var (
	u256One    = uint256.NewInt(1)
	u256Q64    = new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	u256MaxU64 = new(uint256.Int).SetUint64(math.MaxUint64)
)

// Object pool for the quoting hot path

var uint256Pool = sync.Pool{
	New: func() interface{} {
		return new(uint256.Int)
	},
}

// GetU256 gets a uint256.Int from the pool
func GetU256() *uint256.Int {
	return uint256Pool.Get().(*uint256.Int)
}

// PutU256 returns a uint256.Int to the pool
func PutU256(v *uint256.Int) {
	v.Clear()
	uint256Pool.Put(v)
}

// mulDivFloor sets z = a*b/d with a 512-bit intermediate product. ok is false
// when d is zero or the quotient does not fit 256 bits.
func mulDivFloor(z, a, b, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return z, false
	}
	_, overflow := z.MulDivOverflow(a, b, d)
	return z, !overflow
}

// mulDivCeil is mulDivFloor rounded towards +inf.
func mulDivCeil(z, a, b, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return z, false
	}
	rem := GetU256()
	defer PutU256(rem)
	rem.MulMod(a, b, d)

	if _, overflow := z.MulDivOverflow(a, b, d); overflow {
		return z, false
	}
	if !rem.IsZero() {
		if _, overflow := z.AddOverflow(z, u256One); overflow {
			return z, false
		}
	}
	return z, true
}

// mulDivFloor64 is a*b/d for u64 operands; ok is false when the result does
// not fit 64 bits.
func mulDivFloor64(a, b, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	x, y, z := GetU256(), GetU256(), GetU256()
	defer func() {
		PutU256(x)
		PutU256(y)
		PutU256(z)
	}()
	x.SetUint64(a)
	y.SetUint64(b)
	z.SetUint64(d)
	if _, ok := mulDivFloor(x, x, y, z); !ok || !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

func mulDivCeil64(a, b, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	x, y, z := GetU256(), GetU256(), GetU256()
	defer func() {
		PutU256(x)
		PutU256(y)
		PutU256(z)
	}()
	x.SetUint64(a)
	y.SetUint64(b)
	z.SetUint64(d)
	if _, ok := mulDivCeil(x, x, y, z); !ok || !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// toU64 narrows v, ok is false when it does not fit.
func toU64(v *uint256.Int) (uint64, bool) {
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}
