package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/model"
)

const contractColumns = `
	c.id,
	c.terms,
	c.status,
	c.client_id,
	c.contractor_id,
	c.created_at,
	c.updated_at
`

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) GetContract(ctx context.Context, id uint) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).Raw(`
		SELECT`+contractColumns+`
		FROM contracts c
		WHERE c.id = ?
		LIMIT 1
	`, id).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &contract, nil
}

// ListActiveByContractor returns the non-terminated contracts where the
// profile is the contractor.
func (r *ContractRepository) ListActiveByContractor(ctx context.Context, contractorID uint) ([]model.Contract, error) {
	contracts := []model.Contract{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT`+contractColumns+`
		FROM contracts c
		WHERE c.contractor_id = ?
			AND c.status <> ?
		ORDER BY c.id ASC
	`, contractorID, string(model.ContractStatusTerminated)).Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *ContractRepository) ListUnpaidJobsByContractor(ctx context.Context, contractorID uint) ([]model.Job, error) {
	var rows []struct {
		ID                   uint
		Description          string
		Price                decimal.Decimal
		Paid                 *bool
		PaymentDate          *time.Time
		ContractID           uint
		CreatedAt            time.Time
		UpdatedAt            time.Time
		ContractTerms        string
		ContractStatus       model.ContractStatus
		ContractClientID     uint
		ContractContractorID uint
		ContractCreatedAt    time.Time
		ContractUpdatedAt    time.Time
	}

	err := r.db.WithContext(ctx).Raw(`
		SELECT
			j.id,
			j.description,
			j.price,
			j.paid,
			j.payment_date,
			j.contract_id,
			j.created_at,
			j.updated_at,
			c.terms AS contract_terms,
			c.status AS contract_status,
			c.client_id AS contract_client_id,
			c.contractor_id AS contract_contractor_id,
			c.created_at AS contract_created_at,
			c.updated_at AS contract_updated_at
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE j.paid IS NOT TRUE
			AND c.contractor_id = ?
			AND c.status <> ?
		ORDER BY j.id ASC
	`, contractorID, string(model.ContractStatusTerminated)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, model.Job{
			ID:          row.ID,
			Description: row.Description,
			Price:       row.Price,
			Paid:        row.Paid,
			PaymentDate: row.PaymentDate,
			ContractID:  row.ContractID,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
			Contract: &model.Contract{
				ID:           row.ContractID,
				Terms:        row.ContractTerms,
				Status:       row.ContractStatus,
				ClientID:     row.ContractClientID,
				ContractorID: row.ContractContractorID,
				CreatedAt:    row.ContractCreatedAt,
				UpdatedAt:    row.ContractUpdatedAt,
			},
		})
	}
	return jobs, nil
}

// GetPaymentReceipt loads a job together with its contract and both parties.
func (r *ContractRepository) GetPaymentReceipt(ctx context.Context, jobID uint) (*model.PaymentReceipt, error) {
	var row struct {
		ID                   uint
		Description          string
		Price                decimal.Decimal
		Paid                 *bool
		PaymentDate          *time.Time
		ContractID           uint
		ContractTerms        string
		ContractStatus       model.ContractStatus
		ClientID             uint
		ClientFirstName      string
		ClientLastName       string
		ContractorID         uint
		ContractorFirstName  string
		ContractorLastName   string
		ContractorProfession string
	}

	err := r.db.WithContext(ctx).Raw(`
		SELECT
			j.id,
			j.description,
			j.price,
			j.paid,
			j.payment_date,
			j.contract_id,
			c.terms AS contract_terms,
			c.status AS contract_status,
			client.id AS client_id,
			client.first_name AS client_first_name,
			client.last_name AS client_last_name,
			contractor.id AS contractor_id,
			contractor.first_name AS contractor_first_name,
			contractor.last_name AS contractor_last_name,
			contractor.profession AS contractor_profession
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles client ON client.id = c.client_id
		JOIN profiles contractor ON contractor.id = c.contractor_id
		WHERE j.id = ?
		LIMIT 1
	`, jobID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return &model.PaymentReceipt{
		Job: model.Job{
			ID:          row.ID,
			Description: row.Description,
			Price:       row.Price,
			Paid:        row.Paid,
			PaymentDate: row.PaymentDate,
			ContractID:  row.ContractID,
		},
		Contract: model.Contract{
			ID:           row.ContractID,
			Terms:        row.ContractTerms,
			Status:       row.ContractStatus,
			ClientID:     row.ClientID,
			ContractorID: row.ContractorID,
		},
		Client: model.Profile{
			ID:        row.ClientID,
			FirstName: row.ClientFirstName,
			LastName:  row.ClientLastName,
			Type:      model.ProfileTypeClient,
		},
		Contractor: model.Profile{
			ID:         row.ContractorID,
			FirstName:  row.ContractorFirstName,
			LastName:   row.ContractorLastName,
			Profession: row.ContractorProfession,
			Type:       model.ProfileTypeContractor,
		},
	}, nil
}
