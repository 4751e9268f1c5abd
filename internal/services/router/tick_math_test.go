package router

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/services/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqrtPriceAtTick(t *testing.T) {
	tests := []struct {
		name string
		tick int32
		want string
	}{
		{name: "tick zero is one", tick: 0, want: "18446744073709551616"},
		{name: "plus one", tick: 1, want: "18447666387855959850"},
		{name: "minus one", tick: -1, want: "18445821805675392311"},
		{name: "plus 64", tick: 64, want: "18505865242158250041"},
		{name: "minus 64", tick: -64, want: "18387811781193591352"},
		{name: "plus 1000", tick: 1_000, want: "19392480388906836277"},
		{name: "minus 100", tick: -100, want: "18354745142194483561"},
		{name: "min tick", tick: market.MinTick, want: "4295048016"},
		{name: "max tick", tick: market.MaxTick, want: "79226673515401279992447579055"},
		{name: "clamped below", tick: market.MinTick - 10, want: "4295048016"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := uint256.FromDecimal(tt.want)
			require.NoError(t, err)
			got := SqrtPriceAtTick(new(uint256.Int), tt.tick)
			assert.Equal(t, want.Dec(), got.Dec())
		})
	}
}

func TestSqrtPriceAtTickIsMonotonic(t *testing.T) {
	prev := SqrtPriceAtTick(new(uint256.Int), -20_000)
	for tick := int32(-20_000 + 97); tick <= 20_000; tick += 97 {
		cur := SqrtPriceAtTick(new(uint256.Int), tick)
		require.True(t, cur.Gt(prev), "tick %d", tick)
		prev = cur
	}
}

func TestSqrtPriceAtTickSymmetry(t *testing.T) {
	for _, tick := range []int32{1, 64, 5_000, 100_000} {
		up := SqrtPriceAtTick(new(uint256.Int), tick)
		down := SqrtPriceAtTick(new(uint256.Int), -tick)
		// up * down ~ 2^128
		prod := new(uint256.Int).Mul(up, down)
		prod.Rsh(prod, 64)
		diff := new(uint256.Int)
		if prod.Gt(u256Q64) {
			diff.Sub(prod, u256Q64)
		} else {
			diff.Sub(u256Q64, prod)
		}
		assert.True(t, diff.LtUint64(1<<20), "tick %d off by %s", tick, diff.Dec())
	}
}

func BenchmarkSqrtPriceAtTick(b *testing.B) {
	z := new(uint256.Int)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		SqrtPriceAtTick(z, int32(i%200_000)-100_000)
	}
}
