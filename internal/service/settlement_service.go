package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/marketplace/internal/config"
	"github.com/nurpe/marketplace/internal/metrics"
	"github.com/nurpe/marketplace/internal/model"
	"github.com/nurpe/marketplace/internal/repository"
)

type SettlementStore interface {
	InTx(ctx context.Context, fn func(tx repository.SettlementTx) error) error
}

type SettlementService struct {
	store              SettlementStore
	depositCapRatio    decimal.Decimal
	requireClientPayer bool
	now                func() time.Time
	log                zerolog.Logger
}

type PayJobInput struct {
	JobID  uint
	Caller model.Profile
}

type DepositInput struct {
	ClientID uint
	Amount   decimal.Decimal
	Caller   model.Profile
}

func NewSettlementService(store SettlementStore, cfg *config.Config, log zerolog.Logger) *SettlementService {
	return &SettlementService{
		store:              store,
		depositCapRatio:    cfg.Settlement.DepositCapRatio,
		requireClientPayer: cfg.Settlement.RequireClientPayer,
		now:                time.Now,
		log:                log.With().Str("component", "settlement").Logger(),
	}
}

// PayJob moves the job price from the client to the contractor, marks the job
// paid and starts a new contract. Either every write commits or none does.
func (s *SettlementService) PayJob(ctx context.Context, input PayJobInput) (*model.Job, error) {
	var paid model.Job
	err := s.store.InTx(ctx, func(tx repository.SettlementTx) error {
		job, err := tx.LockJob(ctx, input.JobID)
		if err != nil {
			return notFound(err, "job")
		}
		contract, err := tx.LockContract(ctx, job.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		profiles, err := tx.LockProfiles(ctx, contract.ClientID, contract.ContractorID)
		if err != nil {
			return notFound(err, "contract party")
		}
		client := profiles[contract.ClientID]

		// Outsiders must not learn whether the job is paid.
		if s.requireClientPayer && input.Caller.ID != contract.ClientID {
			return fmt.Errorf("%w: job", ErrNotFound)
		}
		if job.IsPaid() {
			return ErrAlreadyPaid
		}
		if client.Balance.LessThan(job.Price) {
			return ErrInsufficientFunds
		}

		debited, err := tx.DebitBalance(ctx, client.ID, job.Price)
		if err != nil {
			return err
		}
		if !debited {
			return ErrInsufficientFunds
		}
		if err := tx.CreditBalance(ctx, contract.ContractorID, job.Price); err != nil {
			return notFound(err, "contractor")
		}

		paidAt := s.now().UTC()
		marked, err := tx.MarkJobPaid(ctx, job.ID, paidAt)
		if err != nil {
			return err
		}
		if !marked {
			return ErrAlreadyPaid
		}

		if contract.Status == model.ContractStatusNew {
			if _, err := tx.StartContract(ctx, contract.ID); err != nil {
				return err
			}
		}

		paidFlag := true
		paid = *job
		paid.Paid = &paidFlag
		paid.PaymentDate = &paidAt
		return nil
	})

	s.record("payment", err)
	if err != nil {
		s.log.Warn().Err(err).Uint("job_id", input.JobID).Uint("caller_id", input.Caller.ID).Msg("job payment rejected")
		return nil, err
	}

	s.log.Info().
		Uint("job_id", paid.ID).
		Uint("contract_id", paid.ContractID).
		Str("price", paid.Price.StringFixed(2)).
		Msg("job paid")
	return &paid, nil
}

// Deposit credits a client balance. The amount may not exceed the configured
// share of the client's outstanding job total at the moment of the deposit.
func (s *SettlementService) Deposit(ctx context.Context, input DepositInput) (*model.Profile, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount supports at most two decimal places", ErrInvalidInput)
	}

	var updated model.Profile
	err := s.store.InTx(ctx, func(tx repository.SettlementTx) error {
		profiles, err := tx.LockProfiles(ctx, input.ClientID)
		if err != nil {
			return notFound(err, "profile")
		}
		client := profiles[input.ClientID]

		if s.requireClientPayer && input.Caller.ID != client.ID {
			return fmt.Errorf("%w: profile", ErrNotFound)
		}

		outstanding, err := tx.OutstandingTotal(ctx, client.ID)
		if err != nil {
			return err
		}
		limit := outstanding.Mul(s.depositCapRatio)
		if input.Amount.GreaterThan(limit) {
			return fmt.Errorf("%w: at most %s can be deposited", ErrDepositLimitExceeded, limit.StringFixed(2))
		}

		if err := tx.CreditBalance(ctx, client.ID, input.Amount); err != nil {
			return notFound(err, "profile")
		}

		updated = client
		updated.Balance = client.Balance.Add(input.Amount)
		return nil
	})

	s.record("deposit", err)
	if err != nil {
		s.log.Warn().Err(err).Uint("profile_id", input.ClientID).Str("amount", input.Amount.String()).Msg("deposit rejected")
		return nil, err
	}

	s.log.Info().Uint("profile_id", updated.ID).Str("amount", input.Amount.StringFixed(2)).Msg("deposit made")
	return &updated, nil
}

func (s *SettlementService) record(operation string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyPaid):
		result = "already_paid"
	case errors.Is(err, ErrInsufficientFunds):
		result = "insufficient_funds"
	case errors.Is(err, ErrDepositLimitExceeded):
		result = "limit_exceeded"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.RecordSettlement(operation, result)
}
