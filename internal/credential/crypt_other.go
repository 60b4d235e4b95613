//go:build !windows

package credential

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// fileKey seals token records at rest. It is compiled in, so it keeps
// tokens out of plain text on disk but does not protect them from someone
// who can read both the binary and the database.
var fileKey = [32]byte{
	0x51, 0x9e, 0x04, 0xc7, 0x2a, 0xd3, 0x68, 0xbf,
	0x13, 0x7c, 0xe2, 0x45, 0x9a, 0x06, 0xfd, 0x31,
	0x8b, 0x24, 0x5f, 0xc0, 0x77, 0xea, 0x19, 0x4d,
	0xa6, 0x3b, 0xd8, 0x02, 0x6e, 0x95, 0xf4, 0x1c,
}

const nonceSize = 24

// encryptValue returns nonce || secretbox(plaintext).
func encryptValue(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fileKey), nil
}

func decryptValue(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed value too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &fileKey)
	if !ok {
		return nil, errors.New("authentication failed")
	}
	return plain, nil
}
