package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/model"
)

// SettlementTx is the set of row-locking reads and guarded writes available
// inside a settlement transaction.
type SettlementTx interface {
	LockJob(ctx context.Context, id uint) (*model.Job, error)
	LockContract(ctx context.Context, id uint) (*model.Contract, error)
	// LockProfiles locks the given profiles in ascending id order.
	LockProfiles(ctx context.Context, ids ...uint) (map[uint]model.Profile, error)
	// DebitBalance reports false when the balance does not cover amount.
	DebitBalance(ctx context.Context, profileID uint, amount decimal.Decimal) (bool, error)
	CreditBalance(ctx context.Context, profileID uint, amount decimal.Decimal) error
	// MarkJobPaid reports false when the job was already paid.
	MarkJobPaid(ctx context.Context, jobID uint, paidAt time.Time) (bool, error)
	StartContract(ctx context.Context, contractID uint) (bool, error)
	OutstandingTotal(ctx context.Context, clientID uint) (decimal.Decimal, error)
}

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// InTx runs fn in a single database transaction. Any error returned by fn
// rolls back every write made through tx.
func (r *SettlementRepository) InTx(ctx context.Context, fn func(tx SettlementTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&settlementTx{db: tx})
	})
}

type settlementTx struct {
	db *gorm.DB
}

func (t *settlementTx) LockJob(ctx context.Context, id uint) (*model.Job, error) {
	var job model.Job
	err := t.db.WithContext(ctx).Raw(`
		SELECT id, description, price, paid, payment_date, contract_id, created_at, updated_at
		FROM jobs
		WHERE id = ?
		FOR UPDATE
	`, id).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

func (t *settlementTx) LockContract(ctx context.Context, id uint) (*model.Contract, error) {
	var contract model.Contract
	err := t.db.WithContext(ctx).Raw(`
		SELECT id, terms, status, client_id, contractor_id, created_at, updated_at
		FROM contracts
		WHERE id = ?
		FOR UPDATE
	`, id).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &contract, nil
}

func (t *settlementTx) LockProfiles(ctx context.Context, ids ...uint) (map[uint]model.Profile, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return map[uint]model.Profile{}, nil
	}

	var profiles []model.Profile
	err := t.db.WithContext(ctx).Raw(`
		SELECT id, first_name, last_name, profession, balance, type
		FROM profiles
		WHERE id IN ?
		ORDER BY id ASC
		FOR UPDATE
	`, unique).Scan(&profiles).Error
	if err != nil {
		return nil, err
	}
	if len(profiles) != len(unique) {
		return nil, gorm.ErrRecordNotFound
	}

	result := make(map[uint]model.Profile, len(profiles))
	for _, profile := range profiles {
		result[profile.ID] = profile
	}
	return result, nil
}

func (t *settlementTx) DebitBalance(ctx context.Context, profileID uint, amount decimal.Decimal) (bool, error) {
	res := t.db.WithContext(ctx).Exec(`
		UPDATE profiles
		SET balance = balance - ?, updated_at = NOW()
		WHERE id = ? AND balance >= ?
	`, amount, profileID, amount)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *settlementTx) CreditBalance(ctx context.Context, profileID uint, amount decimal.Decimal) error {
	res := t.db.WithContext(ctx).Exec(`
		UPDATE profiles
		SET balance = balance + ?, updated_at = NOW()
		WHERE id = ?
	`, amount, profileID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (t *settlementTx) MarkJobPaid(ctx context.Context, jobID uint, paidAt time.Time) (bool, error) {
	res := t.db.WithContext(ctx).Exec(`
		UPDATE jobs
		SET paid = TRUE, payment_date = ?, updated_at = NOW()
		WHERE id = ? AND paid IS NOT TRUE
	`, paidAt, jobID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *settlementTx) StartContract(ctx context.Context, contractID uint) (bool, error) {
	res := t.db.WithContext(ctx).Exec(`
		UPDATE contracts
		SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?
	`, string(model.ContractStatusInProgress), contractID, string(model.ContractStatusNew))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// OutstandingTotal sums unpaid job prices under the client's non-terminated
// contracts.
func (t *settlementTx) OutstandingTotal(ctx context.Context, clientID uint) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := t.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(j.price), 0) AS total
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.paid IS NOT TRUE
			AND c.client_id = ?
			AND c.status <> ?
	`, clientID, string(model.ContractStatusTerminated)).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
