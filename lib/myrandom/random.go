package myrandom

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

//go:generate mockgen -source=random.go -package myrandom -destination stringer_mock.go Stringer
type Stringer interface {
	Create() (string, error)
}

type RealStringer struct{}

func (s RealStringer) Create() (string, error) {
	return randomBytesInHex(16)
}

func randomBytesInHex(count int) (string, error) {
	buf := make([]byte, count)

	_, err := io.ReadFull(rand.Reader, buf)
	if err != nil {
		return "", fmt.Errorf("could not generate %d random bytes: %v", count, err)
	}

	return hex.EncodeToString(buf), nil
}
