// Пакет password — хеширование и проверка паролей (bcrypt).
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength — минимальная длина пароля при регистрации.
const MinLength = 8

// ErrMismatch — пароль не совпадает с хешем.
var ErrMismatch = errors.New("пароль не совпадает")

// Hash возвращает bcrypt-хеш пароля.
func Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", fmt.Errorf("пароль короче %d символов", MinLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("хеширование пароля: %w", err)
	}
	return string(h), nil
}

// Compare сравнивает пароль с хешем. Возвращает ErrMismatch при несовпадении
// (в том числе для пустого или повреждённого хеша).
func Compare(hash, plain string) error {
	if hash == "" {
		return ErrMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return fmt.Errorf("%w: %v", ErrMismatch, err)
}
