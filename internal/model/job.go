package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Job struct {
	ID          uint            `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Paid        *bool           `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	ContractID  uint            `json:"ContractId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Contract    *Contract       `json:"Contract,omitempty" gorm:"-"`
}

func (j Job) IsPaid() bool {
	return j.Paid != nil && *j.Paid
}

// PaymentReceipt groups everything printed on a paid job receipt.
type PaymentReceipt struct {
	Job        Job
	Contract   Contract
	Client     Profile
	Contractor Profile
}
