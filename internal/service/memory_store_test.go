package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/model"
	"github.com/nurpe/marketplace/internal/repository"
)

// memoryStore serializes transactions with one mutex, which is stricter than
// row locks, and restores its state when the transaction function fails.
type memoryStore struct {
	mu        sync.Mutex
	profiles  map[uint]model.Profile
	contracts map[uint]model.Contract
	jobs      map[uint]model.Job

	markPaidErr error
	txCount     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles:  map[uint]model.Profile{},
		contracts: map[uint]model.Contract{},
		jobs:      map[uint]model.Job{},
	}
}

func (m *memoryStore) addProfile(id uint, kind model.ProfileType, balance string) {
	m.profiles[id] = model.Profile{ID: id, FirstName: "P", LastName: "Profile", Type: kind, Balance: decimal.RequireFromString(balance)}
}

func (m *memoryStore) addContract(id, clientID, contractorID uint, status model.ContractStatus) {
	m.contracts[id] = model.Contract{ID: id, ClientID: clientID, ContractorID: contractorID, Status: status}
}

func (m *memoryStore) addJob(id, contractID uint, price string, paid bool) {
	job := model.Job{ID: id, ContractID: contractID, Price: decimal.RequireFromString(price)}
	if paid {
		flag := true
		at := time.Date(2020, 8, 15, 0, 0, 0, 0, time.UTC)
		job.Paid = &flag
		job.PaymentDate = &at
	}
	m.jobs[id] = job
}

func (m *memoryStore) balance(id uint) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[id].Balance
}

func (m *memoryStore) job(id uint) model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memoryStore) contract(id uint) model.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts[id]
}

func (m *memoryStore) InTx(ctx context.Context, fn func(tx repository.SettlementTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	profiles := cloneMap(m.profiles)
	contracts := cloneMap(m.contracts)
	jobs := cloneMap(m.jobs)

	if err := fn(&memoryTx{store: m}); err != nil {
		m.profiles, m.contracts, m.jobs = profiles, contracts, jobs
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) LockJob(ctx context.Context, id uint) (*model.Job, error) {
	job, ok := t.store.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

func (t *memoryTx) LockContract(ctx context.Context, id uint) (*model.Contract, error) {
	contract, ok := t.store.contracts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &contract, nil
}

func (t *memoryTx) LockProfiles(ctx context.Context, ids ...uint) (map[uint]model.Profile, error) {
	result := make(map[uint]model.Profile, len(ids))
	for _, id := range ids {
		profile, ok := t.store.profiles[id]
		if !ok {
			return nil, gorm.ErrRecordNotFound
		}
		result[id] = profile
	}
	return result, nil
}

func (t *memoryTx) DebitBalance(ctx context.Context, profileID uint, amount decimal.Decimal) (bool, error) {
	profile := t.store.profiles[profileID]
	if profile.Balance.LessThan(amount) {
		return false, nil
	}
	profile.Balance = profile.Balance.Sub(amount)
	t.store.profiles[profileID] = profile
	return true, nil
}

func (t *memoryTx) CreditBalance(ctx context.Context, profileID uint, amount decimal.Decimal) error {
	profile, ok := t.store.profiles[profileID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	profile.Balance = profile.Balance.Add(amount)
	t.store.profiles[profileID] = profile
	return nil
}

func (t *memoryTx) MarkJobPaid(ctx context.Context, jobID uint, paidAt time.Time) (bool, error) {
	if t.store.markPaidErr != nil {
		return false, t.store.markPaidErr
	}
	job := t.store.jobs[jobID]
	if job.IsPaid() {
		return false, nil
	}
	flag := true
	job.Paid = &flag
	job.PaymentDate = &paidAt
	t.store.jobs[jobID] = job
	return true, nil
}

func (t *memoryTx) StartContract(ctx context.Context, contractID uint) (bool, error) {
	contract := t.store.contracts[contractID]
	if contract.Status != model.ContractStatusNew {
		return false, nil
	}
	contract.Status = model.ContractStatusInProgress
	t.store.contracts[contractID] = contract
	return true, nil
}

func (t *memoryTx) OutstandingTotal(ctx context.Context, clientID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, job := range t.store.jobs {
		if job.IsPaid() {
			continue
		}
		contract := t.store.contracts[job.ContractID]
		if contract.ClientID != clientID || !isActive(contract) {
			continue
		}
		total = total.Add(job.Price)
	}
	return total, nil
}

// isActive mirrors the repositories' status <> 'terminated' filter.
func isActive(contract model.Contract) bool {
	return contract.Status != model.ContractStatusTerminated
}
