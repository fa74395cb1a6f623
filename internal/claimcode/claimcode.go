// Package claimcode содержит генерацию и проверку кодов выдачи заказов.
package claimcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Length задаёт длину кода выдачи.
const Length = 6

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ErrMismatch возвращается, если предъявленный код не совпадает с кодом заказа.
var ErrMismatch = errors.New("claim code mismatch")

// Generate создаёт новый случайный код выдачи.
func Generate() (string, error) {
	buf := make([]byte, Length)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// wellFormed проверяет, что код состоит из заглавных латинских букв и цифр нужной длины.
func wellFormed(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		ch := code[i]
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

// Verify сравнивает сохранённый код с предъявленным с учётом регистра.
// Код неверной длины или с посторонними символами отклоняется без сравнения.
func Verify(stored, submitted string) error {
	if !wellFormed(submitted) || stored != submitted {
		return ErrMismatch
	}
	return nil
}
