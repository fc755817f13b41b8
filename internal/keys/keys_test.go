package keys

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kpOnce sync.Once
	kp     *Keypair
	kpErr  error
)

// testKeypair shares one generated keypair across tests; 2048-bit generation
// is too slow to repeat per test.
func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	kpOnce.Do(func() {
		kp, kpErr = Generate()
	})
	require.NoError(t, kpErr)
	return kp
}

func TestSignVerify(t *testing.T) {
	pair := testKeypair(t)
	data := "A1A"

	sig, err := Sign(data, pair.Private)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	assert.NoError(t, Verify(data, pair.Public, sig))
}

func TestVerifyRejectsTamperedText(t *testing.T) {
	pair := testKeypair(t)

	sig, err := Sign("A1A", pair.Private)
	require.NoError(t, err)

	err = Verify("A1B", pair.Public, sig)
	assert.ErrorIs(t, err, ErrVerifyFailed)
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	pair := testKeypair(t)
	assert.ErrorIs(t, Verify("A1A", pair.Public, nil), ErrVerifyFailed)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	pair := testKeypair(t)
	other, err := Generate()
	require.NoError(t, err)

	sig, err := Sign("A1A", pair.Private)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify("A1A", other.Public, sig), ErrVerifyFailed)
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	pair := testKeypair(t)

	pemStr, err := EncodePublicKeyPEM(pair.Public)
	require.NoError(t, err)
	assert.Contains(t, pemStr, "BEGIN PUBLIC KEY")
	assert.Contains(t, pemStr, "END PUBLIC KEY")

	decoded, err := DecodePublicKeyPEM(pemStr)
	require.NoError(t, err)
	assert.True(t, pair.Public.Equal(decoded))
}

func TestDecodePublicKeyPEMRejectsGarbage(t *testing.T) {
	_, err := DecodePublicKeyPEM("not a pem block")
	assert.Error(t, err)
}

func BenchmarkSign(b *testing.B) {
	pair, err := Generate()
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Sign("A1A", pair.Private)
	}
}

func BenchmarkVerify(b *testing.B) {
	pair, err := Generate()
	if err != nil {
		b.Fatal(err)
	}
	sig, _ := Sign("A1A", pair.Private)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Verify("A1A", pair.Public, sig)
	}
}
