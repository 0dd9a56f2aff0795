package sale

import (
	"errors"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nexuschain/nexus/providers"
)

// paymentVaultPalletID seeds the deterministic account that holds every
// round's raised payment funds until refund or withdraw_funds, the same
// vault-address idiom native/order uses for its escrow ledger.
const paymentVaultPalletID = "nexuscommerce/sale/payment_escrow"

// tokenVaultPalletID seeds the deterministic account an entity's token
// supply is reserved into for the duration of a round.
const tokenVaultPalletID = "nexuscommerce/sale/token_escrow"

var (
	paymentVaultAccount = deriveVault(paymentVaultPalletID)
	tokenVaultAccount   = deriveVault(tokenVaultPalletID)
)

func deriveVault(palletID string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(palletID))
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}

var ErrNoPaymentRecorded = errors.New("sale: no payment recorded for this subscription")
var ErrPaymentAlreadyLocked = errors.New("sale: a payment is already locked for this subscription key")

// paymentEscrow tracks, per subscription key, the NXS payment amount held
// in the shared payment vault pending refund. Withdraw_funds pays out of
// the vault directly by total, not per-subscription, so it does not read
// this ledger.
type paymentEscrow struct {
	mu       sync.Mutex
	currency providers.Currency
	held     map[string]*big.Int
}

func newPaymentEscrow(currency providers.Currency) *paymentEscrow {
	return &paymentEscrow{currency: currency, held: make(map[string]*big.Int)}
}

// lock transfers amount into the shared payment vault and records it against
// key. A second lock for a key that already has funds held is rejected
// rather than overwritten, which would strand the first payment in the
// vault with nothing tracking it back to its subscriber.
func (p *paymentEscrow) lock(subscriber [20]byte, key string, amount *big.Int) error {
	p.mu.Lock()
	if _, exists := p.held[key]; exists {
		p.mu.Unlock()
		return ErrPaymentAlreadyLocked
	}
	p.mu.Unlock()

	if err := p.currency.Transfer(subscriber, paymentVaultAccount, amount, providers.AllowDeath); err != nil {
		return err
	}
	p.mu.Lock()
	p.held[key] = new(big.Int).Set(amount)
	p.mu.Unlock()
	return nil
}

func (p *paymentEscrow) refund(key string, subscriber [20]byte) (*big.Int, error) {
	p.mu.Lock()
	amount, ok := p.held[key]
	if !ok {
		p.mu.Unlock()
		return nil, ErrNoPaymentRecorded
	}
	delete(p.held, key)
	p.mu.Unlock()

	if err := p.currency.Transfer(paymentVaultAccount, subscriber, amount, providers.AllowDeath); err != nil {
		return nil, err
	}
	return amount, nil
}

func (p *paymentEscrow) withdraw(to [20]byte, amount *big.Int) error {
	return p.currency.Transfer(paymentVaultAccount, to, amount, providers.AllowDeath)
}

// tokenEscrow reserves and pays out an entity's token supply through the
// token pallet's privileged AdminTransfer, bypassing the transferable flag
// and any lock a user-initiated token transfer would be subject to.
type tokenEscrow struct {
	tokens providers.SaleTokenProvider
}

func newTokenEscrow(tokens providers.SaleTokenProvider) *tokenEscrow {
	return &tokenEscrow{tokens: tokens}
}

func (t *tokenEscrow) reserve(shopID uint64, entityAccount [20]byte, amount *big.Int) error {
	return t.tokens.AdminTransfer(shopID, entityAccount, tokenVaultAccount, amount)
}

func (t *tokenEscrow) release(shopID uint64, entityAccount [20]byte, amount *big.Int) error {
	return t.tokens.AdminTransfer(shopID, tokenVaultAccount, entityAccount, amount)
}

func (t *tokenEscrow) payout(shopID uint64, subscriber [20]byte, amount *big.Int) error {
	return t.tokens.AdminTransfer(shopID, tokenVaultAccount, subscriber, amount)
}
