// Package auth implements the role/secret challenge used by auth/handshake
// and auth/authenticate: the server hands out a nonce and the client proves
// knowledge of the role secret with base64(HMAC-MD5(secret, nonce)).
package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	"strconv"
)

// Method is the only supported handshake method.
const Method = "role_secret"

const secretAlphabet = "abcdefABCDEF0123456789"

// SecretLength is the length of generated role secrets.
const SecretLength = 32

// GenerateNonce returns base64 of the decimal rendering of a random 64-bit value.
func GenerateNonce() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	v := binary.BigEndian.Uint64(b[:])
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatUint(v, 10))), nil
}

// ComputeHash returns base64(HMAC-MD5(secret, nonce)).
func ComputeHash(secret []byte, nonce string) string {
	mac := hmac.New(md5.New, secret)
	mac.Write([]byte(nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares clientHash against the expected hash in constant time.
func Verify(secret []byte, nonce, clientHash string) bool {
	expected := ComputeHash(secret, nonce)
	return hmac.Equal([]byte(expected), []byte(clientHash))
}

// GenerateSecret returns SecretLength random characters from [a-fA-F0-9].
func GenerateSecret() (string, error) {
	out := make([]byte, SecretLength)
	n := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[k.Int64()]
	}
	return string(out), nil
}

// GenerateConnectionID returns 8 hex characters from 4 random bytes.
func GenerateConnectionID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 8)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out), nil
}
