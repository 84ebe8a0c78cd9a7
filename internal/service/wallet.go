// wallet.go — операции кошелька пользователей.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// WalletService — сервис операций кошелька.
type WalletService struct {
	wallet     repository.WalletRepository
	principals repository.PrincipalRepository
}

// NewWalletService создаёт сервис кошелька.
func NewWalletService(wallet repository.WalletRepository, principals repository.PrincipalRepository) *WalletService {
	return &WalletService{wallet: wallet, principals: principals}
}

// Transactions возвращает операции пользователя.
// Для несуществующего пользователя — ErrNotFound.
func (s *WalletService) Transactions(ctx context.Context, userID string, page repository.Page) ([]*model.WalletTransaction, error) {
	if !isUUID(userID) {
		return nil, ErrNotFound
	}
	if _, err := s.principals.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	txs, err := s.wallet.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("получение операций: %w", err)
	}
	return txs, nil
}
