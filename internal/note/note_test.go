package note

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentIsDeterministic(t *testing.T) {
	a := FromSecrets(1000, []byte{1}, []byte{2})
	b := FromSecrets(1000, []byte{1}, []byte{2})
	assert.Equal(t, a.Commitment(), b.Commitment())
	assert.Equal(t, a.NullifierHash(), b.NullifierHash())
	assert.NotEqual(t, common.Hash{}, a.Commitment())
}

func TestCommitmentBindsEveryInput(t *testing.T) {
	base := FromSecrets(1000, []byte{1}, []byte{2})
	assert.NotEqual(t, base.Commitment(), FromSecrets(1001, []byte{1}, []byte{2}).Commitment())
	assert.NotEqual(t, base.Commitment(), FromSecrets(1000, []byte{3}, []byte{2}).Commitment())
	assert.NotEqual(t, base.Commitment(), FromSecrets(1000, []byte{1}, []byte{3}).Commitment())

	// the nullifier hash does not depend on the secret or amount
	assert.Equal(t, base.NullifierHash(), FromSecrets(5, []byte{1}, []byte{9}).NullifierHash())
}

func TestHashesAreFieldElements(t *testing.T) {
	n, err := New(42)
	require.NoError(t, err)
	for _, h := range []common.Hash{n.Commitment(), n.NullifierHash(), n.Precommitment()} {
		var e fr.Element
		assert.NoError(t, e.SetBytesCanonical(h[:]))
	}
}

func TestParseRoundTrip(t *testing.T) {
	n, err := New(123456789)
	require.NoError(t, err)

	parsed, err := Parse(n.String())
	require.NoError(t, err)
	assert.Equal(t, n.Amount, parsed.Amount)
	assert.Equal(t, n.Commitment(), parsed.Commitment())
	assert.Equal(t, n.NullifierHash(), parsed.NullifierHash())

	for _, bad := range []string{
		"",
		"other-note-1-0x00",
		"shieldpool-note-x-0x00",
		"shieldpool-note-1-0x00",
		"shieldpool-note-1",
	} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
