package clob

import (
	"crypto/ecdsa"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// L1 auth signs a fixed attestation message under the ClobAuthDomain
// EIP-712 domain; the CLOB verifies it to issue/derive API keys.
const clobAuthMessage = "This message attests that I control the given wallet"

var (
	clobAuthDomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	clobAuthNameHash       = crypto.Keccak256Hash([]byte("ClobAuthDomain"))
	clobAuthVersionHash    = crypto.Keccak256Hash([]byte("1"))
	clobAuthStructTypeHash = crypto.Keccak256Hash([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))

	abiBytes32 = mustABIType("bytes32")
	abiAddress = mustABIType("address")
	abiUint256 = mustABIType("uint256")
)

func mustABIType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

func packHash(types []abi.Type, values []any) (common.Hash, error) {
	args := make(abi.Arguments, len(types))
	for i, ty := range types {
		args[i] = abi.Argument{Type: ty}
	}
	encoded, err := args.Pack(values...)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

func buildClobEip712Signature(privateKey *ecdsa.PrivateKey, signer common.Address, chainID int64, timestamp int64, nonce uint64) (string, error) {
	domainSeparator, err := packHash(
		[]abi.Type{abiBytes32, abiBytes32, abiBytes32, abiUint256},
		[]any{clobAuthDomainTypeHash, clobAuthNameHash, clobAuthVersionHash, big.NewInt(chainID)},
	)
	if err != nil {
		return "", err
	}

	// EIP-712 encodes dynamic (string) members as keccak256 of their value.
	tsHash := crypto.Keccak256Hash([]byte(strconv.FormatInt(timestamp, 10)))
	msgHash := crypto.Keccak256Hash([]byte(clobAuthMessage))

	structHash, err := packHash(
		[]abi.Type{abiBytes32, abiAddress, abiBytes32, abiUint256, abiBytes32},
		[]any{clobAuthStructTypeHash, signer, tsHash, new(big.Int).SetUint64(nonce), msgHash},
	)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)
	digest := crypto.Keccak256Hash(raw)

	sig, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}
