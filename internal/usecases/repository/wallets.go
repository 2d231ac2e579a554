package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/pkg/database"
)

// WalletsRepository stores the HD derivation index assigned to each user.
type WalletsRepository struct {
	logger     *slog.Logger
	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewWalletsRepository(logger *slog.Logger, pg *database.Postgres) *WalletsRepository {
	return &WalletsRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// FindWalletByUser returns nil without error when the user has no wallet yet.
func (r *WalletsRepository) FindWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error) {
	query := `SELECT id, user_id, wallet_index, created_at
              FROM wallets
              WHERE user_id = $1`

	var wallet entities.Wallet
	err := r.db(ctx).QueryRow(ctx, query, userID).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.WalletIndex,
		&wallet.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet by user id: %w", err)
	}

	return &wallet, nil
}

// InsertWallet assigns the next free index to userID. Concurrent inserts for the same user
// resolve to the wallet that won.
func (r *WalletsRepository) InsertWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	var wallet *entities.Wallet

	err := r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO wallets (user_id, wallet_index)
             VALUES ($1, nextval('wallet_index_seq'))
             ON CONFLICT (user_id) DO NOTHING`,
			userID)
		if err != nil {
			return fmt.Errorf("failed to insert wallet: %w", err)
		}

		wallet, err = r.FindWalletByUser(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return fmt.Errorf("wallet for user %s not found after insert", userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Wallet provisioned", "user_id", userID, "index", wallet.WalletIndex)
	return wallet, nil
}
