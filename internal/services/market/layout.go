package market

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/holiman/uint256"
	"github.com/hxuan190/arb-engine/internal/domain"
)

// layout reads fixed offset fields out of an account. The first failed read
// sticks in err and every later read returns zero values.
type layout struct {
	dec *bin.Decoder
	err error
}

func newLayout(data []byte) *layout {
	return &layout{dec: bin.NewBorshDecoder(data)}
}

func (l *layout) seek(off uint) bool {
	if l.err != nil {
		return false
	}
	if err := l.dec.SetPosition(off); err != nil {
		l.err = fmt.Errorf("offset %d: %w", off, err)
		return false
	}
	return true
}

func (l *layout) fail(off uint, err error) {
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("offset %d: %w", off, err)
	}
}

func (l *layout) u8(off uint) uint8 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadUint8()
	l.fail(off, err)
	return v
}

func (l *layout) u16(off uint) uint16 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadUint16(binary.LittleEndian)
	l.fail(off, err)
	return v
}

func (l *layout) u32(off uint) uint32 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadUint32(binary.LittleEndian)
	l.fail(off, err)
	return v
}

func (l *layout) i32(off uint) int32 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadInt32(binary.LittleEndian)
	l.fail(off, err)
	return v
}

func (l *layout) u64(off uint) uint64 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadUint64(binary.LittleEndian)
	l.fail(off, err)
	return v
}

func (l *layout) i64(off uint) int64 {
	if !l.seek(off) {
		return 0
	}
	v, err := l.dec.ReadInt64(binary.LittleEndian)
	l.fail(off, err)
	return v
}

func (l *layout) u128(off uint) uint256.Int {
	if !l.seek(off) {
		return uint256.Int{}
	}
	v, err := l.dec.ReadUint128(binary.LittleEndian)
	l.fail(off, err)
	return uint256.Int{v.Lo, v.Hi, 0, 0}
}

// i128 returns the magnitude and sign of a two's complement i128.
func (l *layout) i128(off uint) (uint256.Int, bool) {
	raw := l.u128(off)
	if raw[1]>>63 == 0 {
		return raw, false
	}
	mag := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	mag.Sub(mag, &raw)
	return *mag, true
}

func (l *layout) pubkey(off uint) solana.PublicKey {
	if !l.seek(off) {
		return solana.PublicKey{}
	}
	v, err := l.dec.ReadNBytes(32)
	l.fail(off, err)
	if err != nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(v)
}

func hasDiscriminator(data []byte, disc [8]byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], disc[:])
}

// tokenBalance decodes an SPL token account (either token program) and
// returns its amount.
func tokenBalance(accounts domain.AccountSet, address solana.PublicKey) (uint64, error) {
	data, ok := accounts[address]
	if !ok || len(data) == 0 {
		return 0, fmt.Errorf("token account %s not fetched", address)
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return 0, fmt.Errorf("token account %s: %w", address, err)
	}
	if acc.State == token.Uninitialized {
		return 0, fmt.Errorf("token account %s is not initialized", address)
	}
	return acc.Amount, nil
}

// decodeMint returns the decimals of a mint account.
func decodeMint(data []byte) (uint8, error) {
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return 0, err
	}
	if !mint.IsInitialized {
		return 0, fmt.Errorf("mint is not initialized")
	}
	return mint.Decimals, nil
}

func subSaturating(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
