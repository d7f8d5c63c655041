package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

func GenerateTransactionID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("txn_%d_%09d", timestamp, randomNum.Int64())
}

// GenerateLockOwner returns a fresh owner token for a per-order lock.
func GenerateLockOwner() string {
	return uuid.NewString()
}
