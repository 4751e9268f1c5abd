package router

import (
	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

// sqrt(1.0001^(2^i)) as Q32.96, rounded down.
var positiveTickRatios = [...]*uint256.Int{
	uint256.MustFromDecimal("79232123823359799118286999567"),
	uint256.MustFromDecimal("79236085330515764027303304731"),
	uint256.MustFromDecimal("79244008939048815603706035061"),
	uint256.MustFromDecimal("79259858533276714757314932305"),
	uint256.MustFromDecimal("79291567232598584799939703904"),
	uint256.MustFromDecimal("79355022692464371645785046466"),
	uint256.MustFromDecimal("79482085999252804386437311141"),
	uint256.MustFromDecimal("79736823300114093921829183326"),
	uint256.MustFromDecimal("80248749790819932309965073892"),
	uint256.MustFromDecimal("81282483887344747381513967011"),
	uint256.MustFromDecimal("83390072131320151908154831281"),
	uint256.MustFromDecimal("87770609709833776024991924138"),
	uint256.MustFromDecimal("97234110755111693312479820773"),
	uint256.MustFromDecimal("119332217159966728226237229890"),
	uint256.MustFromDecimal("179736315981702064433883588727"),
	uint256.MustFromDecimal("407748233172238350107850275304"),
	uint256.MustFromDecimal("2098478828474011932436660412517"),
	uint256.MustFromDecimal("55581415166113811149459800483533"),
	uint256.MustFromDecimal("38992368544603139932233054999993551"),
}

// sqrt(1.0001^-(2^i)) as Q64.64, rounded down.
var negativeTickRatios = [...]*uint256.Int{
	uint256.MustFromDecimal("18445821805675392311"),
	uint256.MustFromDecimal("18444899583751176498"),
	uint256.MustFromDecimal("18443055278223354162"),
	uint256.MustFromDecimal("18439367220385604838"),
	uint256.MustFromDecimal("18431993317065449817"),
	uint256.MustFromDecimal("18417254355718160513"),
	uint256.MustFromDecimal("18387811781193591352"),
	uint256.MustFromDecimal("18329067761203520168"),
	uint256.MustFromDecimal("18212142134806087854"),
	uint256.MustFromDecimal("17980523815641551639"),
	uint256.MustFromDecimal("17526086738831147013"),
	uint256.MustFromDecimal("16651378430235024244"),
	uint256.MustFromDecimal("15030750278693429944"),
	uint256.MustFromDecimal("12247334978882834399"),
	uint256.MustFromDecimal("8131365268884726200"),
	uint256.MustFromDecimal("3584323654723342297"),
	uint256.MustFromDecimal("696457651847595233"),
	uint256.MustFromDecimal("26294789957452057"),
	uint256.MustFromDecimal("37481735321082"),
}

var (
	u256Q96   = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	lowMask64 = new(uint256.Int).SetUint64(^uint64(0))
)

// SqrtPriceAtTick returns sqrt(1.0001^tick) as Q64.64 exactly as the
// Whirlpool program computes it: positive ticks multiply Q32.96 factors and
// drop 32 bits at the end, negative ticks multiply Q64.64 factors. Every
// product is floored. tick is clamped to [market.MinTick, market.MaxTick].
func SqrtPriceAtTick(z *uint256.Int, tick int32) *uint256.Int {
	if tick < market.MinTick {
		tick = market.MinTick
	} else if tick > market.MaxTick {
		tick = market.MaxTick
	}
	if tick >= 0 {
		return sqrtPricePositiveTick(z, uint32(tick))
	}
	return sqrtPriceNegativeTick(z, uint32(-tick))
}

func sqrtPricePositiveTick(z *uint256.Int, tick uint32) *uint256.Int {
	if tick&1 != 0 {
		z.Set(positiveTickRatios[0])
	} else {
		z.Set(u256Q96)
	}
	for i := 1; i < len(positiveTickRatios); i++ {
		if tick&(1<<i) != 0 {
			z.Mul(z, positiveTickRatios[i])
			z.Rsh(z, 96)
		}
	}
	return z.Rsh(z, 32)
}

func sqrtPriceNegativeTick(z *uint256.Int, tick uint32) *uint256.Int {
	if tick&1 != 0 {
		z.Set(negativeTickRatios[0])
	} else {
		z.Set(u256Q64)
	}
	for i := 1; i < len(negativeTickRatios); i++ {
		if tick&(1<<i) != 0 {
			z.Mul(z, negativeTickRatios[i])
			z.Rsh(z, 64)
		}
	}
	return z
}
