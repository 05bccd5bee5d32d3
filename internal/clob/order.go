package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	orderbuilder "github.com/polymarket/go-order-utils/pkg/builder"
	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
)

const zeroAddressHex = "0x0000000000000000000000000000000000000000"

// OrderReceipt is the CLOB response to a posted order.
type OrderReceipt struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

type signedOrderPayload struct {
	Order     orderJSON `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

type orderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

var (
	saltMu  sync.Mutex
	saltRng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>1)))
)

func nextSalt() int64 {
	saltMu.Lock()
	defer saltMu.Unlock()
	return int64(saltRng.Uint64() & 0x7fffffffffffffff)
}

// SubmitBuy builds, signs, and posts a GTC limit BUY for size shares of
// tokenID at the given price. Price and size are quantized to the token's
// tick size and the CLOB's decimal rails before signing.
func (c *Client) SubmitBuy(ctx context.Context, tokenID string, price, size float64) (OrderReceipt, error) {
	if c == nil {
		return OrderReceipt{}, fmt.Errorf("clob client nil")
	}
	if price <= 0 || price >= 1 {
		return OrderReceipt{}, fmt.Errorf("price must be in (0,1), got %v", price)
	}
	if size <= 0 {
		return OrderReceipt{}, fmt.Errorf("size must be > 0, got %v", size)
	}
	if !c.HasApiCreds() {
		return OrderReceipt{}, fmt.Errorf("api creds not configured")
	}

	tickSize, err := c.GetTickSize(ctx, tokenID)
	if err != nil {
		return OrderReceipt{}, err
	}
	scale, priceDecimals, err := tickScaleFromTickSize(tickSize)
	if err != nil {
		return OrderReceipt{}, err
	}

	priceTicks, err := parseDecimalToUnits(strconv.FormatFloat(price, 'f', -1, 64), priceDecimals)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("parse price %v: %w", price, err)
	}
	if priceTicks.Sign() <= 0 {
		return OrderReceipt{}, fmt.Errorf("price %v rounds to 0 at tick size %s", price, tickSize)
	}
	sizeUnits, err := parseDecimalToUnits(strconv.FormatFloat(size, 'f', -1, 64), collateralTokenDecimals)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("parse size %v: %w", size, err)
	}

	makerAmount, takerAmount, err := computeBuyAmounts(sizeUnits, priceTicks, scale)
	if err != nil {
		return OrderReceipt{}, err
	}

	feeBps, err := c.GetFeeRateBps(ctx, tokenID)
	if err != nil {
		return OrderReceipt{}, err
	}
	negRisk, err := c.GetNegRisk(ctx, tokenID)
	if err != nil {
		return OrderReceipt{}, err
	}
	contract := ordermodel.CTFExchange
	if negRisk {
		contract = ordermodel.NegRiskCTFExchange
	}

	od := &ordermodel.OrderData{
		Maker:         c.funder.Hex(),
		Taker:         zeroAddressHex,
		TokenId:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		FeeRateBps:    strconv.Itoa(feeBps),
		Nonce:         "0",
		Signer:        c.signer.Hex(),
		Expiration:    "0",
		Side:          ordermodel.BUY,
		SignatureType: ordermodel.SignatureType(c.signatureTy),
	}

	builder := orderbuilder.NewExchangeOrderBuilderImpl(big.NewInt(c.chainID), nextSalt)
	signed, err := builder.BuildSignedOrder(c.privateKey, od, contract)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("sign order: %w", err)
	}

	return c.postSignedOrder(ctx, signed, OrderTypeGTC)
}

func (c *Client) postSignedOrder(ctx context.Context, order *ordermodel.SignedOrder, orderType OrderType) (OrderReceipt, error) {
	if order == nil {
		return OrderReceipt{}, fmt.Errorf("order required")
	}

	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	owner := ""
	if creds != nil {
		owner = creds.Key
	}

	payload := signedOrderPayload{
		Owner:     owner,
		OrderType: orderType,
		Order: orderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			Side:          SideBuy,
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     "0x" + fmt.Sprintf("%x", order.Signature),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OrderReceipt{}, err
	}

	headers, err := c.l2Headers(c.timestampForAuth(ctx), http.MethodPost, "/order", body)
	if err != nil {
		return OrderReceipt{}, err
	}

	var receipt OrderReceipt
	if err := c.doJSONBody(ctx, http.MethodPost, "/order", headers, body, &receipt); err != nil {
		return receipt, err
	}
	if !receipt.Success || receipt.ErrorMsg != "" {
		return receipt, fmt.Errorf("order rejected: %s", receipt.ErrorMsg)
	}
	return receipt, nil
}
