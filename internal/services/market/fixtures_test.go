package market

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hxuan190/arb-engine/internal/common"
)

func putU64(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:], v)
}

func putU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

func putU16(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:], v)
}

func putKey(buf []byte, off int, k solana.PublicKey) {
	copy(buf[off:], k[:])
}

// putU128 writes a value that fits in 64 bits as a little endian u128.
func putU128(buf []byte, off int, lo uint64) {
	putU64(buf, off, lo)
	putU64(buf, off+8, 0)
}

func putI128Neg(buf []byte, off int, magnitude uint64) {
	putU64(buf, off, -magnitude)
	putU64(buf, off+8, ^uint64(0))
}

func tokenAccountData(mint solana.PublicKey, amount uint64) []byte {
	buf := make([]byte, 165)
	putKey(buf, 0, mint)
	putKey(buf, 32, solana.NewWallet().PublicKey())
	putU64(buf, 64, amount)
	buf[108] = 1
	return buf
}

func mintData(decimals uint8) []byte {
	buf := make([]byte, 82)
	putU64(buf, 36, 1_000_000_000)
	buf[44] = decimals
	buf[45] = 1
	return buf
}

type raydiumAMMFixture struct {
	address   solana.PublicKey
	coinMint  solana.PublicKey
	pcMint    solana.PublicKey
	coinVault solana.PublicKey
	pcVault   solana.PublicKey
}

func newRaydiumAMMFixture(coinMint, pcMint solana.PublicKey) raydiumAMMFixture {
	return raydiumAMMFixture{
		address:   solana.NewWallet().PublicKey(),
		coinMint:  coinMint,
		pcMint:    pcMint,
		coinVault: solana.NewWallet().PublicKey(),
		pcVault:   solana.NewWallet().PublicKey(),
	}
}

func (f raydiumAMMFixture) data(feeNum, feeDen, pnlCoin, pnlPc uint64) []byte {
	buf := make([]byte, raydiumAMMSize)
	putU64(buf, ammStatusOffset, 6)
	putU64(buf, ammSwapFeeNumOffset, feeNum)
	putU64(buf, ammSwapFeeDenOffset, feeDen)
	putU64(buf, ammNeedTakePnlCoinOff, pnlCoin)
	putU64(buf, ammNeedTakePnlPcOff, pnlPc)
	putKey(buf, ammCoinVaultOffset, f.coinVault)
	putKey(buf, ammPcVaultOffset, f.pcVault)
	putKey(buf, ammCoinMintOffset, f.coinMint)
	putKey(buf, ammPcMintOffset, f.pcMint)
	putKey(buf, ammOpenOrdersOffset, solana.NewWallet().PublicKey())
	putKey(buf, ammMarketOffset, solana.NewWallet().PublicKey())
	putKey(buf, ammMarketProgramOffset, solana.NewWallet().PublicKey())
	putKey(buf, ammTargetOrdersOffset, solana.NewWallet().PublicKey())
	return buf
}

func accountOf(owner solana.PublicKey, data []byte) *rpc.Account {
	return &rpc.Account{
		Lamports: 1,
		Owner:    owner,
		Data:     rpc.DataBytesOrJSONFromBytes(data),
	}
}

// fakeReader serves getMultipleAccounts from memory.
type fakeReader struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*rpc.Account
	calls    int
	fail     bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{accounts: make(map[solana.PublicKey]*rpc.Account)}
}

func (r *fakeReader) set(address, owner solana.PublicKey, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[address] = accountOf(owner, data)
}

func (r *fakeReader) GetMultipleAccountsWithOpts(
	_ context.Context,
	accounts []solana.PublicKey,
	_ *rpc.GetMultipleAccountsOpts,
) (*rpc.GetMultipleAccountsResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return nil, errors.New("connection refused")
	}
	if len(accounts) > common.MaxAccountsPerRequest {
		return nil, errors.New("too many accounts")
	}
	out := &rpc.GetMultipleAccountsResult{Value: make([]*rpc.Account, len(accounts))}
	for i, k := range accounts {
		out.Value[i] = r.accounts[k]
	}
	return out, nil
}
