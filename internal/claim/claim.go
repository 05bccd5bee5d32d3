// Package claim redeems settled up-or-down positions: it lists the
// funder's redeemable holdings from the Data API, buckets them per
// condition, and calls redeemPositions on the conditional tokens
// contract.
package claim

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"

	"poly-updown/internal/dataapi"
)

const ctfABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"collateralToken","type":"address"},
    {"internalType":"bytes32","name":"parentCollectionId","type":"bytes32"},
    {"internalType":"bytes32","name":"conditionId","type":"bytes32"},
    {"internalType":"uint256[]","name":"indexSets","type":"uint256[]"}
  ],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Item is one redeemPositions call: a condition plus the outcome index
// sets held under it.
type Item struct {
	ConditionID common.Hash
	IndexSets   []*big.Int
	Positions   []dataapi.Position
}

// Claimer lists and redeems settled positions for one wallet. With
// Execute false it only reports what would be claimed.
type Claimer struct {
	data          *dataapi.Client
	rpcURL        string
	privateKey    *ecdsa.PrivateKey
	funder        common.Address
	sizeThreshold float64
	execute       bool
}

func New(data *dataapi.Client, rpcURL string, privateKey *ecdsa.PrivateKey, funder common.Address, sizeThreshold float64, execute bool) (*Claimer, error) {
	if data == nil {
		return nil, fmt.Errorf("data api client required")
	}
	if (funder == common.Address{}) {
		return nil, fmt.Errorf("funder address required")
	}
	if execute {
		if privateKey == nil {
			return nil, fmt.Errorf("private key required to execute claims")
		}
		if strings.TrimSpace(rpcURL) == "" {
			return nil, fmt.Errorf("polygon rpc url required to execute claims")
		}
	}
	return &Claimer{
		data:          data,
		rpcURL:        rpcURL,
		privateKey:    privateKey,
		funder:        funder,
		sizeThreshold: sizeThreshold,
		execute:       execute,
	}, nil
}

// Claim runs one full pass. Per-condition failures are logged and the
// pass continues; only setup failures (listing, dialing) return an error.
func (c *Claimer) Claim(ctx context.Context) error {
	positions, err := c.data.RedeemablePositions(ctx, c.funder.Hex(), c.sizeThreshold, 0)
	if err != nil {
		return fmt.Errorf("list redeemable: %w", err)
	}

	items, skippedNeg, skippedInvalid := BuildItems(positions)
	if len(items) == 0 {
		log.Printf("[claim] user=%s redeemable=0 skipped_neg=%d skipped_invalid=%d", c.funder.Hex(), skippedNeg, skippedInvalid)
		return nil
	}

	log.Printf("[claim] user=%s redeemable=%d buckets=%d skipped_neg=%d skipped_invalid=%d",
		c.funder.Hex(), len(positions), len(items), skippedNeg, skippedInvalid)
	for _, item := range items {
		title, size := summarize(item.Positions)
		log.Printf("[claim] ready condition=%s indexSets=%s title=%q size=%.6f",
			item.ConditionID.Hex(), formatIndexSets(item.IndexSets), title, size)
	}

	if !c.execute {
		log.Printf("[claim] dry-run: set ENABLE_TRADING=true to submit transactions")
		return nil
	}
	return c.redeemAll(ctx, items)
}

func (c *Claimer) redeemAll(ctx context.Context, items []Item) error {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return fmt.Errorf("dial polygon rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	contracts, err := orderconfig.GetContracts(chainID.Int64())
	if err != nil {
		return fmt.Errorf("contracts for chain %d: %w", chainID.Int64(), err)
	}

	ctfABI, err := abi.JSON(strings.NewReader(ctfABIJSON))
	if err != nil {
		return fmt.Errorf("ctf abi parse: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.privateKey, chainID)
	if err != nil {
		return err
	}

	contract := bind.NewBoundContract(contracts.Conditional, ctfABI, client, client, client)
	parentCollectionID := [32]byte{}

	for _, item := range items {
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		opts.Context = callCtx
		tx, err := contract.Transact(opts, "redeemPositions",
			contracts.Collateral, parentCollectionID, item.ConditionID, item.IndexSets)
		cancel()
		if err != nil {
			log.Printf("[warn] redeem condition=%s failed: %v", item.ConditionID.Hex(), err)
			continue
		}
		log.Printf("[claim] sent tx=%s condition=%s", tx.Hash().Hex(), item.ConditionID.Hex())
	}
	return nil
}

// BuildItems buckets redeemable positions by condition id. Conditions
// touched by negative risk are skipped entirely (they redeem through the
// adapter, not the plain CTF), as are malformed entries.
func BuildItems(positions []dataapi.Position) (items []Item, skippedNeg, skippedInvalid int) {
	type bucket struct {
		item         Item
		negativeRisk bool
	}
	buckets := make(map[string]*bucket)

	for _, pos := range positions {
		cond, err := parseConditionID(pos.ConditionID)
		if err != nil {
			skippedInvalid++
			log.Printf("[warn] skip position: invalid conditionId %q", pos.ConditionID)
			continue
		}
		indexSet, err := outcomeIndexToSet(pos.OutcomeIndex)
		if err != nil {
			skippedInvalid++
			log.Printf("[warn] skip position: invalid outcomeIndex=%d condition=%s", pos.OutcomeIndex, cond.Hex())
			continue
		}

		key := cond.Hex()
		b := buckets[key]
		if b == nil {
			b = &bucket{item: Item{ConditionID: cond}}
			buckets[key] = b
		}
		if pos.NegativeRisk || b.negativeRisk {
			b.negativeRisk = true
			b.item.IndexSets = nil
			b.item.Positions = nil
			skippedNeg++
			continue
		}
		if !containsIndexSet(b.item.IndexSets, indexSet) {
			b.item.IndexSets = append(b.item.IndexSets, indexSet)
		}
		b.item.Positions = append(b.item.Positions, pos)
	}

	for _, b := range buckets {
		if b.negativeRisk || len(b.item.IndexSets) == 0 {
			continue
		}
		sort.Slice(b.item.IndexSets, func(i, j int) bool {
			return b.item.IndexSets[i].Cmp(b.item.IndexSets[j]) < 0
		})
		items = append(items, b.item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ConditionID.Hex() < items[j].ConditionID.Hex()
	})
	return items, skippedNeg, skippedInvalid
}

func summarize(positions []dataapi.Position) (string, float64) {
	var title string
	var total float64
	for _, p := range positions {
		total += p.Size
		if title == "" {
			title = strings.TrimSpace(p.Title)
		}
	}
	return title, total
}

func outcomeIndexToSet(idx int) (*big.Int, error) {
	if idx < 0 || idx > 255 {
		return nil, fmt.Errorf("invalid outcome index %d", idx)
	}
	return new(big.Int).Lsh(big.NewInt(1), uint(idx)), nil
}

func parseConditionID(raw string) (common.Hash, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return common.Hash{}, errors.New("empty condition id")
	}
	if !strings.HasPrefix(s, "0x") {
		return common.Hash{}, fmt.Errorf("condition id missing 0x prefix: %q", s)
	}
	hexStr := strings.TrimPrefix(s, "0x")
	if len(hexStr) != 64 {
		return common.Hash{}, fmt.Errorf("condition id length %d", len(hexStr))
	}
	if _, err := hex.DecodeString(hexStr); err != nil {
		return common.Hash{}, fmt.Errorf("condition id hex: %w", err)
	}
	return common.HexToHash(s), nil
}

func containsIndexSet(sets []*big.Int, target *big.Int) bool {
	for _, s := range sets {
		if s.Cmp(target) == 0 {
			return true
		}
	}
	return false
}

func formatIndexSets(sets []*big.Int) string {
	parts := make([]string, 0, len(sets))
	for _, s := range sets {
		parts = append(parts, s.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}
