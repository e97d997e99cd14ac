package crypto_test

import (
	"bytes"
	"testing"

	"github.com/go-libre/libre/crypto"
	"github.com/stretchr/testify/require"
)

func TestCTRRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	iv := bytes.Repeat([]byte{0x22}, 16)
	plaintext := []byte("hello ctr mode, full blocks and partial tail!")

	enc, err := crypto.NewCTR(key, crypto.DirEncrypt)
	require.NoError(t, err)
	require.NoError(t, enc.SetIV(iv))
	ct, err := enc.Encrypt(nil, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ct)

	dec, err := crypto.NewCTR(key, crypto.DirDecrypt)
	require.NoError(t, err)
	require.NoError(t, dec.SetIV(iv))
	pt, err := dec.Decrypt(nil, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestGCMRoundTripAndTamperDetection(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 16)
	iv := bytes.Repeat([]byte{0x44}, 12)
	plaintext := []byte("gcm protected payload")

	enc, err := crypto.NewGCM(key, crypto.DirEncrypt)
	require.NoError(t, err)
	require.NoError(t, enc.SetIV(iv))
	ct, err := enc.Encrypt(nil, plaintext)
	require.NoError(t, err)
	tag, err := enc.GetAuthTag(16)
	require.NoError(t, err)

	dec, err := crypto.NewGCM(key, crypto.DirDecrypt)
	require.NoError(t, err)
	require.NoError(t, dec.SetIV(iv))
	require.NoError(t, dec.Authenticate(tag))
	pt, err := dec.Decrypt(nil, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)

	tampered := append([]byte(nil), tag...)
	tampered[0] ^= 0xff
	dec2, err := crypto.NewGCM(key, crypto.DirDecrypt)
	require.NoError(t, err)
	require.NoError(t, dec2.SetIV(iv))
	require.NoError(t, dec2.Authenticate(tampered))
	_, err = dec2.Decrypt(nil, ct)
	require.Error(t, err)
}

func TestHMACResetsPerDigest(t *testing.T) {
	h := crypto.NewHMAC([]byte("key"))
	a := h.Digest([]byte("message one"))
	b := h.Digest([]byte("message two"))
	require.NotEqual(t, a, b)

	h2 := crypto.NewHMAC([]byte("key"))
	a2 := h2.Digest([]byte("message one"))
	require.Equal(t, a, a2)
}

func TestVerifyHMACFlipByteFails(t *testing.T) {
	key := []byte("password")
	data := []byte("stun message body")
	mac := crypto.NewHMAC(key).Digest(data)
	require.NoError(t, crypto.VerifyHMAC(key, data, mac))

	tampered := append([]byte(nil), data...)
	tampered[0] ^= 0x01
	require.Error(t, crypto.VerifyHMAC(key, tampered, mac))

	badKey := append([]byte(nil), key...)
	badKey[0] ^= 0x01
	require.Error(t, crypto.VerifyHMAC(badKey, data, mac))
}

func TestConstantTimeCompare(t *testing.T) {
	require.True(t, crypto.ConstantTimeCompare([]byte("abc"), []byte("abc")))
	require.False(t, crypto.ConstantTimeCompare([]byte("abc"), []byte("abd")))
	require.False(t, crypto.ConstantTimeCompare([]byte("abc"), []byte("ab")))
}
