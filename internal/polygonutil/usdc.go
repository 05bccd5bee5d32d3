// Package polygonutil holds small Polygon-chain helpers: RPC URL
// resolution and the USDC balance probe printed at startup.
package polygonutil

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const USDCTokenDecimals = 6

const microsScale = 1_000_000

// USDC.e on Polygon, the CLOB collateral token.
var USDCTokenAddress = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

var erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// RPCURLFromEnv resolves the Polygon RPC endpoint from POLYGON_RPC_URL,
// RPC_URL, or RPC_WS_URL.
func RPCURLFromEnv() (string, error) {
	rpcURL := strings.TrimSpace(firstNonEmpty(os.Getenv("POLYGON_RPC_URL"), os.Getenv("RPC_URL"), os.Getenv("RPC_WS_URL")))
	if rpcURL == "" {
		return "", fmt.Errorf("POLYGON_RPC_URL or RPC_URL required")
	}
	if !strings.HasPrefix(rpcURL, "wss") && !strings.HasPrefix(rpcURL, "http") {
		return "", fmt.Errorf("polygon RPC URL must be wss://... or http(s)://..., got %q", rpcURL)
	}
	if strings.Contains(rpcURL, "YOUR_KEY") {
		return "", fmt.Errorf("polygon RPC URL still contains placeholder YOUR_KEY")
	}
	return rpcURL, nil
}

// USDCTokenBalanceMicros reads the owner's USDC balance in 1e6 units.
func USDCTokenBalanceMicros(ctx context.Context, rpcURL string, owner common.Address) (uint64, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return 0, fmt.Errorf("polygon RPC URL missing")
	}
	if (owner == common.Address{}) {
		return 0, fmt.Errorf("owner address missing")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("dial polygon RPC: %w", err)
	}
	defer client.Close()

	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &USDCTokenAddress, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("usdc balanceOf(%s): %w", owner.Hex(), err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("usdc balanceOf returned empty result")
	}

	bal := new(big.Int).SetBytes(out)
	if !bal.IsUint64() {
		return 0, fmt.Errorf("usdc balance overflows uint64")
	}
	return bal.Uint64(), nil
}

// FormatMicros renders a 1e6-unit amount as a decimal string without
// trailing zeros ("2450000" -> "2.45").
func FormatMicros(m uint64) string {
	whole := m / microsScale
	frac := m % microsScale
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%d.%s", whole, fs)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
