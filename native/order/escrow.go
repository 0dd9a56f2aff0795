package order

import (
	"errors"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nexuschain/nexus/providers"
)

// vaultPalletID seeds the deterministic sub-account that holds every order's
// locked funds until they are released, refunded, or partially paid out.
const vaultPalletID = "nexuscommerce/order/escrow"

var vaultAccount = deriveVaultAccount()

func deriveVaultAccount() [20]byte {
	hash := ethcrypto.Keccak256([]byte(vaultPalletID))
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}

var (
	ErrEscrowNotFound   = errors.New("order escrow: escrow id not found")
	ErrEscrowOverdrawn  = errors.New("order escrow: amount exceeds locked balance")
	ErrEscrowZeroAmount = errors.New("order escrow: amount must be positive")
)

// EscrowLedger implements providers.Escrow as a single shared vault account
// with a per-escrow-ID ledger of remaining locked balance. It is the order
// pallet's adaptation of native/escrow's vault-address pattern, simplified
// from that package's multi-token arbitrated-trade model down to the
// one-sided hold/release/refund/partial-payout an order needs.
type EscrowLedger struct {
	mu       sync.Mutex
	currency providers.Currency
	balances map[string]*big.Int
	payers   map[string][20]byte
}

// NewEscrowLedger wires a ledger against the shared currency.
func NewEscrowLedger(currency providers.Currency) *EscrowLedger {
	return &EscrowLedger{
		currency: currency,
		balances: make(map[string]*big.Int),
		payers:   make(map[string][20]byte),
	}
}

// VaultAccount returns the deterministic account every locked balance sits
// in prior to release, refund, or partial payout.
func (l *EscrowLedger) VaultAccount() [20]byte { return vaultAccount }

func (l *EscrowLedger) LockFrom(payer [20]byte, escrowID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrEscrowZeroAmount
	}
	if err := l.currency.Transfer(payer, vaultAccount, amount, providers.AllowDeath); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[escrowID] = new(big.Int).Set(amount)
	l.payers[escrowID] = payer
	return nil
}

func (l *EscrowLedger) Balance(escrowID string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[escrowID]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// TransferFromEscrow pays amount out of escrowID's remaining balance to
// recipient, leaving any remainder locked. Used by the completion
// sub-protocol to split a single order's hold between seller and platform.
func (l *EscrowLedger) TransferFromEscrow(escrowID string, recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrEscrowZeroAmount
	}
	l.mu.Lock()
	bal, ok := l.balances[escrowID]
	if !ok {
		l.mu.Unlock()
		return ErrEscrowNotFound
	}
	if bal.Cmp(amount) < 0 {
		l.mu.Unlock()
		return ErrEscrowOverdrawn
	}
	remaining := new(big.Int).Sub(bal, amount)
	l.balances[escrowID] = remaining
	l.mu.Unlock()

	if err := l.currency.Transfer(vaultAccount, recipient, amount, providers.AllowDeath); err != nil {
		l.mu.Lock()
		l.balances[escrowID] = bal
		l.mu.Unlock()
		return err
	}
	return nil
}

// ReleaseAll pays the entire remaining balance of escrowID to recipient.
func (l *EscrowLedger) ReleaseAll(escrowID string, recipient [20]byte) (*big.Int, error) {
	l.mu.Lock()
	bal, ok := l.balances[escrowID]
	if !ok {
		l.mu.Unlock()
		return nil, ErrEscrowNotFound
	}
	amount := new(big.Int).Set(bal)
	l.mu.Unlock()

	if amount.Sign() == 0 {
		l.clear(escrowID)
		return amount, nil
	}
	if err := l.currency.Transfer(vaultAccount, recipient, amount, providers.AllowDeath); err != nil {
		return nil, err
	}
	l.clear(escrowID)
	return amount, nil
}

// RefundAll pays the entire remaining balance of escrowID back to payer.
func (l *EscrowLedger) RefundAll(escrowID string, payer [20]byte) (*big.Int, error) {
	return l.ReleaseAll(escrowID, payer)
}

func (l *EscrowLedger) clear(escrowID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.balances, escrowID)
	delete(l.payers, escrowID)
}

var _ providers.Escrow = (*EscrowLedger)(nil)
