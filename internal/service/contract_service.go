package service

import (
	"context"
	"fmt"

	"github.com/nurpe/marketplace/internal/model"
)

type ContractReader interface {
	GetContract(ctx context.Context, id uint) (*model.Contract, error)
	ListActiveByContractor(ctx context.Context, contractorID uint) ([]model.Contract, error)
	ListUnpaidJobsByContractor(ctx context.Context, contractorID uint) ([]model.Job, error)
	GetPaymentReceipt(ctx context.Context, jobID uint) (*model.PaymentReceipt, error)
}

type ReceiptGenerator interface {
	Generate(receipt model.PaymentReceipt) ([]byte, error)
}

type ContractService struct {
	repo     ContractReader
	receipts ReceiptGenerator
}

type FileResult struct {
	FileName string
	Content  []byte
}

func NewContractService(repo ContractReader, receipts ReceiptGenerator) *ContractService {
	return &ContractService{repo: repo, receipts: receipts}
}

// GetContract returns the contract only to its contractor. Clients get
// ErrNotFound, the same as for a missing contract.
func (s *ContractService) GetContract(ctx context.Context, id uint, caller model.Profile) (*model.Contract, error) {
	contract, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, notFound(err, "contract")
	}
	if contract.ContractorID != caller.ID {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	return contract, nil
}

func (s *ContractService) ListContracts(ctx context.Context, caller model.Profile) ([]model.Contract, error) {
	return s.repo.ListActiveByContractor(ctx, caller.ID)
}

func (s *ContractService) ListUnpaidJobs(ctx context.Context, caller model.Profile) ([]model.Job, error) {
	return s.repo.ListUnpaidJobsByContractor(ctx, caller.ID)
}

// JobReceipt renders the payment receipt of a paid job for either party of
// its contract.
func (s *ContractService) JobReceipt(ctx context.Context, jobID uint, caller model.Profile) (*FileResult, error) {
	receipt, err := s.repo.GetPaymentReceipt(ctx, jobID)
	if err != nil {
		return nil, notFound(err, "job")
	}
	if caller.ID != receipt.Client.ID && caller.ID != receipt.Contractor.ID {
		return nil, fmt.Errorf("%w: job", ErrNotFound)
	}
	if !receipt.Job.IsPaid() {
		return nil, fmt.Errorf("%w: job is not paid", ErrNotFound)
	}

	content, err := s.receipts.Generate(*receipt)
	if err != nil {
		return nil, err
	}
	return &FileResult{
		FileName: fmt.Sprintf("receipt-job-%d.pdf", receipt.Job.ID),
		Content:  content,
	}, nil
}
