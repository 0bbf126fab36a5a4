package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"sports-prediction/internal/metrics"
	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BetService places stakes on approved events and records them
type BetService struct {
	repo      *repository.Repository
	lifecycle *LifecycleService
	ledger    Ledger
	decimals  int32
	metrics   *metrics.SettlementMetrics
	now       func() time.Time

	// inflight holds the (prediction, user) pairs with a stake underway
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewBetService creates a new BetService
func NewBetService(
	repo *repository.Repository,
	lifecycle *LifecycleService,
	ledger Ledger,
	decimals int32,
	m *metrics.SettlementMetrics,
) *BetService {
	return &BetService{
		repo:      repo,
		lifecycle: lifecycle,
		ledger:    ledger,
		decimals:  decimals,
		metrics:   m,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

func betKey(predictionID uuid.UUID, userID uint) string {
	return fmt.Sprintf("%s/%d", predictionID, userID)
}

// reserve claims the right to stake for one user on one prediction. It
// reports false while another placement for the same pair is running.
func (s *BetService) reserve(predictionID uuid.UUID, userID uint) bool {
	key := betKey(predictionID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *BetService) release(predictionID uuid.UUID, userID uint) {
	s.mu.Lock()
	delete(s.inflight, betKey(predictionID, userID))
	s.mu.Unlock()
}

// PlaceBet stakes on one option of an approved event. A request carrying a
// transaction reference was signed by the user's wallet and is confirmed on
// the ledger; otherwise the stake is placed on the user's behalf.
func (s *BetService) PlaceBet(
	ctx context.Context,
	userID uint,
	userAddress string,
	predictionID uuid.UUID,
	req *models.PlaceBetRequest,
) (*models.Bet, error) {
	if req.Amount == 0 {
		return nil, newValidationError("amount", "amount must be positive")
	}
	if !ValidLedgerAddress(userAddress) {
		return nil, newValidationError("user_address", "a valid wallet address is required to bet")
	}

	event, err := s.lifecycle.Get(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusApproved || event.PoolID == nil {
		return nil, newValidationError("prediction", "prediction is not open for betting")
	}
	if !s.now().Before(event.ExpiresAt) {
		return nil, newValidationError("prediction", "prediction has expired")
	}

	option := strings.TrimSpace(req.Option)
	idx, ok := event.OptionIndex(option)
	if !ok {
		return nil, newValidationError("option", fmt.Sprintf("option must be %q or %q", event.OptionA, event.OptionB))
	}

	// Held until the bet row is written so a second request cannot stake
	// between the duplicate check and the insert.
	if !s.reserve(predictionID, userID) {
		return nil, newValidationError("prediction", "a bet on this prediction is already being placed")
	}
	defer s.release(predictionID, userID)

	_, err = s.repo.GetBet(ctx, predictionID, userID)
	if err == nil {
		return nil, newValidationError("prediction", "already placed a bet on this prediction")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing bet: %w", err)
	}

	poolID := *event.PoolID
	var txRef, path string

	if req.TxRef != "" {
		path = "wallet"
		started := time.Now()
		receipt, err := s.ledger.ConfirmStake(ctx, req.TxRef)
		s.metrics.RecordLedgerCall("confirm_stake", started, err)
		if err != nil {
			return nil, &LedgerReadError{Op: "confirm_stake", Err: err}
		}
		if receipt.PoolID != poolID || receipt.OptionIndex != idx || receipt.Amount != req.Amount {
			return nil, newValidationError("transaction_hash", "transaction does not match the bet")
		}
		if receipt.Bettor != "" && receipt.Bettor != userAddress {
			return nil, newValidationError("transaction_hash", "transaction was signed by another wallet")
		}
		txRef = receipt.TxRef
	} else {
		path = "custodial"
		started := time.Now()
		res, err := s.ledger.PlaceStake(ctx, StakeRequest{
			PoolID:      poolID,
			OptionIndex: idx,
			Amount:      req.Amount,
			Bettor:      userAddress,
		})
		s.metrics.RecordLedgerCall("place_stake", started, err)
		if err != nil {
			return nil, &LedgerWriteError{Op: "place_stake", Ambiguous: isAmbiguous(err), Err: err}
		}
		txRef = res.TxRef
	}

	bet := &models.Bet{
		ID:                uuid.New(),
		PredictionID:      predictionID,
		UserID:            userID,
		UserLedgerAddress: userAddress,
		Option:            event.Options()[idx],
		OptionIndex:       idx,
		Amount:            req.Amount,
		LedgerTxRef:       txRef,
		PoolID:            poolID,
		CreatedAt:         s.now(),
	}

	if err := s.repo.CreateBet(ctx, bet); err != nil {
		if path == "custodial" {
			// The stake is committed on the ledger but has no bet row.
			log.Printf("[Bets] ORPHANED stake tx %s: user %d, prediction %s, %d on %q: %v",
				txRef, userID, predictionID, req.Amount, bet.Option, err)
			return nil, &LedgerWriteError{Op: "record_bet", Err: fmt.Errorf("stake %s committed but not recorded: %w", txRef, err)}
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newValidationError("transaction_hash", "transaction or bet already recorded")
		}
		return nil, fmt.Errorf("failed to record bet: %w", err)
	}

	s.metrics.RecordBet(path)
	log.Printf("[Bets] User %d staked %d on %q of prediction %s (%s, tx %s)",
		userID, req.Amount, bet.Option, predictionID, path, txRef)

	return bet, nil
}

// ListByUser returns a user's bets, newest first
func (s *BetService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Bet, error) {
	return s.repo.ListBetsByUser(ctx, userID, limit, offset)
}

// ListByPrediction returns every bet on a prediction
func (s *BetService) ListByPrediction(ctx context.Context, predictionID uuid.UUID) ([]*models.Bet, error) {
	return s.repo.ListBetsByPrediction(ctx, predictionID)
}

// UserSummary maps prediction id to the user's position on it
func (s *BetService) UserSummary(ctx context.Context, userID uint) (map[string]models.BetSummaryEntry, error) {
	bets, err := s.repo.ListBetsByUser(ctx, userID, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}

	summary := make(map[string]models.BetSummaryEntry, len(bets))
	for _, bet := range bets {
		summary[bet.PredictionID.String()] = models.BetSummaryEntry{
			Option:        bet.Option,
			Amount:        bet.Amount,
			DisplayAmount: s.displayAmount(bet.Amount),
			TxRef:         bet.LedgerTxRef,
			CreatedAt:     bet.CreatedAt,
		}
	}
	return summary, nil
}

func (s *BetService) displayAmount(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -s.decimals)
}
