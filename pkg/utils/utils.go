package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"time"
)

const alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var alphabetSize = big.NewInt(int64(len(alphanumeric)))

// RandStr product random string from a CSPRNG over [0-9a-zA-Z]
func RandStr(length int) (string, error) {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		result[i] = alphanumeric[n.Int64()]
	}
	return string(result), nil
}

// Hash hex sha256 of s
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TimestampMS() int64 {
	return time.Now().UnixMilli()
}

func String(s string) *string {
	return &s
}

func Int64(v int64) *int64 {
	return &v
}

func Float64(v float64) *float64 {
	return &v
}
