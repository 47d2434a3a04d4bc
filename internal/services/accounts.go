package services

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DevKey returns the deterministic development key for index. These keys
// are public knowledge and must never hold real funds.
func DevKey(index int) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("vrflottery dev account %d", index)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		// a keccak digest is a valid secp256k1 scalar with overwhelming probability
		panic(fmt.Sprintf("dev key %d: %v", index, err))
	}
	return key
}

// DevAccount returns the address of the development account at index.
func DevAccount(index int) common.Address {
	return crypto.PubkeyToAddress(DevKey(index).PublicKey)
}

// contractAddress derives the address of a component deployed by deployer
// with the given nonce.
func contractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}
