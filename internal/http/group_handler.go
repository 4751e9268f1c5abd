package http

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/arb-engine/internal/aggregator"
	"github.com/hxuan190/arb-engine/internal/domain"
	"github.com/hxuan190/arb-engine/internal/http/httputil"
	"github.com/hxuan190/arb-engine/internal/services/market"
)

type StatusReader interface {
	Statuses() []aggregator.GroupStatus
	Status(mint solana.PublicKey) (aggregator.GroupStatus, bool)
}

type MarketReader interface {
	MintInfo(mint solana.PublicKey) (market.MintInfo, bool)
	GroupSnapshots(mint solana.PublicKey) ([]*domain.PoolState, bool)
}

type GroupHandler struct {
	engine  StatusReader
	markets MarketReader
}

func NewGroupHandler(engine StatusReader, markets MarketReader) *GroupHandler {
	return &GroupHandler{engine: engine, markets: markets}
}

func (h *GroupHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listGroups)
	pub.GET("/:mint", h.getGroup)
}

func (h *GroupHandler) Root() string {
	return "/groups"
}

// GroupInfo is the engine's view of one mint group
type GroupInfo struct {
	Mint      string `json:"mint"`
	BaseMint  string `json:"base_mint"`
	PoolCount int    `json:"pool_count"`

	Cycles     uint64 `json:"cycles"`
	Submitted  uint64 `json:"submitted"`
	LastCycle  string `json:"last_cycle,omitempty"`
	LastResult string `json:"last_result,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	// Profit of the last submitted route in base mint units
	LastProfit uint64 `json:"last_profit"`
	// Same profit scaled by the base mint decimals
	LastProfitUI  string `json:"last_profit_ui"`
	LastSignature string `json:"last_signature,omitempty"`

	ConsecutiveFailures int  `json:"consecutive_failures"`
	Escalated           bool `json:"escalated"`

	// Pools is only filled for a single group
	Pools []PoolInfo `json:"pools,omitempty"`
}

// PoolInfo is the last published snapshot of a pool.
type PoolInfo struct {
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	MintA     string `json:"mint_a"`
	MintB     string `json:"mint_b"`
	ReserveA  string `json:"reserve_a"`
	ReserveB  string `json:"reserve_b"`
	FeeBps    string `json:"fee_bps"`
	UpdatedAt string `json:"updated_at"`
}

type GroupListResponse struct {
	Groups []GroupInfo `json:"groups"`
	Total  int         `json:"total"`
}

func (h *GroupHandler) listGroups(c *gin.Context) {
	statuses := h.engine.Statuses()
	groups := make([]GroupInfo, 0, len(statuses))
	for _, st := range statuses {
		groups = append(groups, h.toInfo(st))
	}
	httputil.HandleSuccess(c, GroupListResponse{Groups: groups, Total: len(groups)})
}

func (h *GroupHandler) getGroup(c *gin.Context) {
	mint, err := solana.PublicKeyFromBase58(c.Param("mint"))
	if err != nil {
		httputil.HandleBadRequest(c, "invalid mint address")
		return
	}
	st, ok := h.engine.Status(mint)
	if !ok {
		httputil.HandleNotFound(c, "no group for mint")
		return
	}
	info := h.toInfo(st)
	if h.markets != nil {
		if states, ok := h.markets.GroupSnapshots(mint); ok {
			info.Pools = make([]PoolInfo, 0, len(states))
			for _, ps := range states {
				info.Pools = append(info.Pools, h.toPoolInfo(ps))
			}
		}
	}
	httputil.HandleSuccess(c, info)
}

func (h *GroupHandler) toPoolInfo(ps *domain.PoolState) PoolInfo {
	fee := decimal.Zero
	if ps.FeeDenominator > 0 {
		fee = decimalU64(ps.FeeNumerator).
			Mul(decimal.NewFromInt(10_000)).
			Div(decimalU64(ps.FeeDenominator))
	}
	return PoolInfo{
		Address:   ps.Address.String(),
		Kind:      ps.Kind.String(),
		MintA:     ps.MintA.String(),
		MintB:     ps.MintB.String(),
		ReserveA:  h.uiAmount(ps.MintA, ps.ReserveA),
		ReserveB:  h.uiAmount(ps.MintB, ps.ReserveB),
		FeeBps:    fee.String(),
		UpdatedAt: time.Unix(ps.Timestamp, 0).UTC().Format(time.RFC3339),
	}
}

func (h *GroupHandler) toInfo(st aggregator.GroupStatus) GroupInfo {
	info := GroupInfo{
		Mint:                st.Mint.String(),
		BaseMint:            st.BaseMint.String(),
		PoolCount:           st.PoolCount,
		Cycles:              st.Cycles,
		Submitted:           st.Submitted,
		LastResult:          st.LastResult,
		LastError:           st.LastError,
		LastProfit:          st.LastProfit,
		LastProfitUI:        h.uiAmount(st.BaseMint, st.LastProfit),
		LastSignature:       st.LastSignature,
		ConsecutiveFailures: st.ConsecutiveFailures,
		Escalated:           st.Escalated,
	}
	if !st.LastCycle.IsZero() {
		info.LastCycle = st.LastCycle.UTC().Format(time.RFC3339Nano)
	}
	return info
}

// uiAmount renders raw token units with the mint's decimals, or the raw
// amount when the mint was never loaded.
func (h *GroupHandler) uiAmount(mint solana.PublicKey, amount uint64) string {
	var exp int32
	if h.markets != nil {
		if info, ok := h.markets.MintInfo(mint); ok {
			exp = -int32(info.Decimals)
		}
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), exp).String()
}

func decimalU64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
