package shop

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PalletID is the distinct seed shop accounts derive from, kept separate
// from entity.PalletID so a shop id and an entity id never collide on the
// same derived address.
const PalletID = "nexuscommerce/shop"

// DeriveAccount computes the shop's operating-fund sub-account.
func DeriveAccount(id uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	seed := append([]byte(PalletID), buf[:]...)
	hash := ethcrypto.Keccak256(seed)
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}
