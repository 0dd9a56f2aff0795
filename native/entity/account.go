package entity

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PalletID seeds the deterministic sub-account derivation so entity
// accounts never collide with ordinary user addresses or other pallets'
// derived accounts.
const PalletID = "nexuscommerce/entity"

// DeriveAccount computes entity_account(id) = keccak256(PalletID || be(id))[12:],
// the collision-resistant 20-byte sub-account that holds an entity's
// operating fund. Grounded on the Keccak256 address-derivation idiom used
// for escrow and payment intent ids elsewhere in this codebase.
func DeriveAccount(id uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	seed := append([]byte(PalletID), buf[:]...)
	hash := ethcrypto.Keccak256(seed)
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}
