// Package note builds the private notes clients deposit into the pool.
// All hashes are MiMC over the BN254 scalar field:
//
//	precommitment  = H(nullifier, secret)
//	commitment     = H(amount, precommitment)
//	nullifier_hash = H(nullifier)
//
// The pool stores these values opaquely and never recomputes them.
package note

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const prefix = "shieldpool-note"

var errMalformed = errors.New("malformed note")

// Note is the secret material behind one commitment.
type Note struct {
	Amount    uint64
	Nullifier fr.Element
	Secret    fr.Element
}

// New draws a random nullifier and secret.
func New(amount uint64) (*Note, error) {
	n := &Note{Amount: amount}
	if _, err := n.Nullifier.SetRandom(); err != nil {
		return nil, fmt.Errorf("random nullifier: %w", err)
	}
	if _, err := n.Secret.SetRandom(); err != nil {
		return nil, fmt.Errorf("random secret: %w", err)
	}
	return n, nil
}

// FromSecrets builds a note from raw bytes, reduced into the field.
func FromSecrets(amount uint64, nullifier, secret []byte) *Note {
	n := &Note{Amount: amount}
	n.Nullifier.SetBytes(nullifier)
	n.Secret.SetBytes(secret)
	return n
}

// Precommitment is H(nullifier, secret).
func (n *Note) Precommitment() common.Hash {
	return hash(n.Nullifier, n.Secret)
}

// Commitment is the leaf value submitted with a deposit.
func (n *Note) Commitment() common.Hash {
	var amount, pre fr.Element
	amount.SetUint64(n.Amount)
	p := n.Precommitment()
	pre.SetBytes(p[:])
	return hash(amount, pre)
}

// NullifierHash is the value revealed when the note is spent.
func (n *Note) NullifierHash() common.Hash {
	return hash(n.Nullifier)
}

// String encodes the note as shieldpool-note-<amount>-<nullifier><secret>.
func (n *Note) String() string {
	nb, sb := n.Nullifier.Bytes(), n.Secret.Bytes()
	return fmt.Sprintf("%s-%d-%s", prefix, n.Amount, hexutil.Encode(append(nb[:], sb[:]...)))
}

// Parse decodes a note produced by String.
func Parse(s string) (*Note, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), prefix+"-")
	if !ok {
		return nil, errMalformed
	}
	amountStr, secrets, ok := strings.Cut(rest, "-")
	if !ok {
		return nil, errMalformed
	}
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", errMalformed, err)
	}
	raw, err := hexutil.Decode(secrets)
	if err != nil || len(raw) != 2*fr.Bytes {
		return nil, errMalformed
	}
	return FromSecrets(amount, raw[:fr.Bytes], raw[fr.Bytes:]), nil
}

func hash(elems ...fr.Element) common.Hash {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		// canonical field elements are always accepted
		_, _ = h.Write(b[:])
	}
	return common.BytesToHash(h.Sum(nil))
}
