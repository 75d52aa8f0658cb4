package service

import (
	"fmt"
	"io"
)

const (
	suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLength   = 8
	// largest multiple of len(suffixAlphabet) that fits in a byte
	suffixCutoff = 252
)

// randomSuffix draws suffixLength symbols from src. Bytes at or above
// suffixCutoff are rejected so every symbol is equally likely.
func randomSuffix(src io.Reader) (string, error) {
	out := make([]byte, 0, suffixLength)
	buf := make([]byte, 2*suffixLength)
	for len(out) < suffixLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= suffixCutoff {
				continue
			}
			out = append(out, suffixAlphabet[int(b)%len(suffixAlphabet)])
			if len(out) == suffixLength {
				break
			}
		}
	}
	return string(out), nil
}
