package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solbid/models"
)

// GameStore 以 gorm 實作 IGameStore
type GameStore struct {
	db *gorm.DB
}

// NewGameStore 建立一個新的 GameStore
func NewGameStore(db *gorm.DB) *GameStore {
	return &GameStore{db: db}
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("[%s] err=%w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("[%s] err=%w", op, ErrDuplicate)
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}

func (s *GameStore) GetGame(ctx context.Context, gameID uint64) (*models.Game, error) {
	const op = "GameStore.GetGame"

	var game models.Game
	result := s.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "bid_count"}})
		}).
		Preload("Players.User").
		Preload("Players.Bid").
		Where(&models.Game{GameID: gameID}).
		First(&game)
	if result.Error != nil {
		return nil, translate(op, result.Error)
	}
	return &game, nil
}

func (s *GameStore) CreateGame(ctx context.Context, game *models.Game, creator *models.Player, bid *models.Bid) error {
	const op = "GameStore.CreateGame"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(game); result.Error != nil {
			return result.Error
		}
		creator.GameID = game.ID
		if result := tx.Create(creator); result.Error != nil {
			return result.Error
		}
		bid.PlayerID = creator.ID
		if result := tx.Create(bid); result.Error != nil {
			return result.Error
		}
		return advanceCounter(tx, game.GameID)
	})
	if err != nil {
		return translate(op, err)
	}
	return nil
}

// advanceCounter 把遊戲編號計數器推進到至少 gameID
// 編號由鏈上交易決定，這裡只追上進度，絕不倒退
func advanceCounter(tx *gorm.DB, gameID uint64) error {
	var counter models.GameCounter
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&counter)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return tx.Create(&models.GameCounter{ID: 1, CurrGameID: gameID}).Error
	}
	if result.Error != nil {
		return result.Error
	}
	if counter.CurrGameID >= gameID {
		return nil
	}
	counter.CurrGameID = gameID
	return tx.Save(&counter).Error
}

func (s *GameStore) AppendBid(ctx context.Context, game *models.Game, player *models.Player, bid *models.Bid) error {
	const op = "GameStore.AppendBid"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 只更新出價改動的欄位，遊戲編號等欄位建立後不再覆寫
		result := tx.Model(&models.Game{}).
			Where("id = ?", game.ID).
			Updates(map[string]any{
				"highest_bid":     game.HighestBid,
				"last_bid_time":   game.LastBidTime,
				"total_bids":      game.TotalBids,
				"last_bidder_pda": game.LastBidderPda,
				"prize_pool":      game.PrizePool,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		player.GameID = game.ID
		if result := tx.Create(player); result.Error != nil {
			return result.Error
		}
		bid.PlayerID = player.ID
		if result := tx.Create(bid); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		return translate(op, err)
	}
	return nil
}

func (s *GameStore) FinalizeGame(ctx context.Context, game *models.Game, players []models.Player, finisher *models.Player, bid *models.Bid) error {
	const op = "GameStore.FinalizeGame"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Game{}).
			Where("id = ?", game.ID).
			Updates(map[string]any{
				"highest_bid":     game.HighestBid,
				"last_bid_time":   game.LastBidTime,
				"total_bids":      game.TotalBids,
				"last_bidder_pda": game.LastBidderPda,
				"prize_pool":      game.PrizePool,
				"ended":           true,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		for i := range players {
			result := tx.Model(&models.Player{}).
				Where("id = ?", players[i].ID).
				Updates(map[string]any{
					"total_bid_amount": players[i].TotalBidAmount,
					"royalty_earned":   players[i].RoyaltyEarned,
					"bid_count":        players[i].BidCount,
					"safe":             players[i].Safe,
					"role":             players[i].Role,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}

		finisher.GameID = game.ID
		if result := tx.Create(finisher); result.Error != nil {
			return result.Error
		}
		bid.PlayerID = finisher.ID
		if result := tx.Create(bid); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		return translate(op, err)
	}
	return nil
}

func (s *GameStore) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	const op = "GameStore.ListActiveGames"

	var games []models.Game
	result := s.db.WithContext(ctx).
		Where("ended = ?", false).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "game_id"}, Desc: true}).
		Find(&games)
	if result.Error != nil {
		return nil, translate(op, result.Error)
	}
	return games, nil
}

func (s *GameStore) CurrentGameID(ctx context.Context) (uint64, error) {
	const op = "GameStore.CurrentGameID"

	var counter models.GameCounter
	result := s.db.WithContext(ctx).First(&counter)
	if result.Error != nil {
		return 0, translate(op, result.Error)
	}
	return counter.CurrGameID, nil
}

func (s *GameStore) EnsureUser(ctx context.Context, user *models.User) error {
	const op = "GameStore.EnsureUser"

	result := s.db.WithContext(ctx).
		Where(&models.User{ID: user.ID}).
		FirstOrCreate(user)
	if result.Error != nil {
		return translate(op, result.Error)
	}
	return nil
}
