package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/model"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const professionEarningsSQL = `
		SELECT
			p.profession,
			SUM(j.price) AS earned
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.contractor_id
		WHERE j.paid IS TRUE
			AND j.payment_date >= ?
			AND j.payment_date < ?
		GROUP BY p.profession
		ORDER BY earned DESC, p.profession ASC`

const clientPaymentsSQL = `
		SELECT
			p.id,
			TRIM(p.first_name || ' ' || p.last_name) AS full_name,
			SUM(j.price) AS paid
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE j.paid IS TRUE
			AND j.payment_date >= ?
			AND j.payment_date < ?
		GROUP BY p.id, p.first_name, p.last_name
		ORDER BY paid DESC, p.id ASC`

// ProfessionEarnings ranks contractor professions by the sum of jobs paid in
// [from, to). Ties are broken by profession name. A limit of zero or less
// returns every row.
func (r *ReportRepository) ProfessionEarnings(ctx context.Context, from, to time.Time, limit int) ([]model.ProfessionEarnings, error) {
	rows := []model.ProfessionEarnings{}
	query, args := withLimit(professionEarningsSQL, limit, from, to)
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClientPayments ranks clients by the sum of jobs they paid in [from, to).
// Ties are broken by profile id. A limit of zero or less returns every row.
func (r *ReportRepository) ClientPayments(ctx context.Context, from, to time.Time, limit int) ([]model.ClientPayments, error) {
	rows := []model.ClientPayments{}
	query, args := withLimit(clientPaymentsSQL, limit, from, to)
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func withLimit(query string, limit int, args ...interface{}) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	return query + "\n\t\tLIMIT ?", append(args, limit)
}
