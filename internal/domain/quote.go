package domain

type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	if d == AToB {
		return "AtoB"
	}
	return "BtoA"
}

// Quote is the exact result of an exact-in swap against one pool snapshot.
type Quote struct {
	AmountIn  uint64
	AmountOut uint64
	Fee       uint64
	Direction Direction
}
