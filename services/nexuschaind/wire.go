package nexuschaind

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// decodeAddr parses a 0x-prefixed 20-byte hex address, the same wire shape
// the teacher's own JSON-RPC handlers use for account fields.
func decodeAddr(s string) ([20]byte, error) {
	var out [20]byte
	b, err := decodeHex(s, 20)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := decodeHex(s, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHex(s string, wantLen int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("nexuschaind: invalid hex: %w", err)
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("nexuschaind: expected %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

// parseBig parses a base-10 string into a big.Int. An empty string yields
// zero, matching how optional amount fields default in requests.
func parseBig(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("nexuschaind: invalid integer %q", s)
	}
	return v, nil
}

func encodeAddr(a [20]byte) string { return "0x" + hex.EncodeToString(a[:]) }

func encodeHash32(h [32]byte) string { return "0x" + hex.EncodeToString(h[:]) }

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
