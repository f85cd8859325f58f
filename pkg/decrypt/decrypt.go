// Package decrypt reverses HLS AES-128 segment encryption where the IV is the
// segment's position in the playlist.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/heyjunin/m3u8grab/pkg/errors"
)

// KeySize is the only supported key length.
const KeySize = 16

// IV returns position as a 16-byte big-endian unsigned integer.
func IV(position uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], position)
	return iv
}

// Segment decrypts an AES-128-CBC, PKCS#7 padded segment. It has no side effects
// and may be called concurrently with a shared key.
func Segment(ciphertext, key []byte, position int) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.New(errors.InvalidKeyLength, "Invalid key length",
			fmt.Sprintf("got %d bytes, want %d", len(key), KeySize), errors.ErrKeyLength)
	}
	if position < 0 {
		return nil, errors.New(errors.DecryptionError, "Invalid segment position",
			fmt.Sprintf("position %d", position), errors.ErrCiphertextLength)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New(errors.DecryptionError, "Ciphertext is not block aligned",
			fmt.Sprintf("%d bytes", len(ciphertext)), errors.ErrCiphertextLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidKeyLength, "Invalid key", errors.ErrKeyLength)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, IV(uint64(position))).CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New(errors.DecryptionError, "Invalid padding",
			fmt.Sprintf("pad length %d", n), errors.ErrBadPadding)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New(errors.DecryptionError, "Invalid padding",
				"inconsistent pad bytes", errors.ErrBadPadding)
		}
	}
	return data[:len(data)-n], nil
}
