package models

import (
	"context"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
)

// Contract is an insurance policy managed by the agency. Intake generates
// the year's termes up front; collection then works terme by terme.
type Contract struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	ContractNumber string              `gorm:"size:50;not null;uniqueIndex:uniq_contract_number" json:"contract_number"`
	ClientName     string              `gorm:"size:255;not null" json:"client_name"`
	ClientPhone    string              `gorm:"size:30" json:"client_phone"`
	AnnualPremium  decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"annual_premium"`
	EffectiveDate  time.Time           `gorm:"not null" json:"effective_date"`
	Periodicity    ContractPeriodicity `gorm:"type:enum('Annual','SemiAnnual','Quarterly','Monthly');not null;default:'Annual'" json:"periodicity"`
	Termes         []*Terme            `gorm:"foreignKey:ContractNumber;references:ContractNumber" json:"termes"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Contract) GetId() int {
	return c.ID
}

type NewContract struct {
	ContractNumber string              `json:"contract_number" binding:"required"`
	ClientName     string              `json:"client_name" binding:"required"`
	ClientPhone    string              `json:"client_phone"`
	AnnualPremium  decimal.Decimal     `json:"annual_premium" binding:"required"`
	EffectiveDate  time.Time           `json:"effective_date" binding:"required"`
	Periodicity    ContractPeriodicity `json:"periodicity" binding:"required"`
}

func (input *NewContract) validate(ctx context.Context) error {
	if input.AnnualPremium.LessThanOrEqual(decimal.Zero) {
		return utils.NewValidationError("annual premium must be positive")
	}
	if !input.Periodicity.IsValid() {
		return utils.NewValidationError("invalid periodicity")
	}
	if input.ClientPhone != "" {
		if err := utils.ValidatePhoneNumber(input.ClientPhone, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid client phone number")
		}
	}
	count, err := utils.ResourceCountWhere[Contract](ctx, "contract_number = ?", input.ContractNumber)
	if err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("contract number already exists")
	}
	return nil
}

// GenerateTermes splits a year of premium into due installments. Pure: the
// last terme absorbs the rounding remainder so the sum always equals the
// annual premium.
func GenerateTermes(contractNumber string, annualPremium decimal.Decimal, effectiveDate time.Time, periodicity ContractPeriodicity) []*Terme {
	n := periodicity.TermesPerYear()
	monthsPerTerme := 12 / n

	perTerme := annualPremium.DivRound(decimal.NewFromInt(int64(n)), 4)
	termes := make([]*Terme, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		premium := perTerme
		if i == n-1 {
			premium = annualPremium.Sub(allocated)
		}
		allocated = allocated.Add(premium)
		termes = append(termes, &Terme{
			ContractNumber: contractNumber,
			DueDate:        effectiveDate.AddDate(0, i*monthsPerTerme, 0),
			Premium:        premium,
		})
	}
	return termes
}

// CreateContract registers a contract and generates its termes in one
// transaction.
func CreateContract(ctx context.Context, input *NewContract) (*Contract, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	effectiveDate, err := utils.ConvertToDate(input.EffectiveDate, "")
	if err != nil {
		return nil, err
	}

	contract := Contract{
		ContractNumber: input.ContractNumber,
		ClientName:     input.ClientName,
		ClientPhone:    input.ClientPhone,
		AnnualPremium:  input.AnnualPremium,
		EffectiveDate:  effectiveDate,
		Periodicity:    input.Periodicity,
	}
	contract.Termes = GenerateTermes(input.ContractNumber, input.AnnualPremium, effectiveDate, input.Periodicity)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := tx.Create(&contract).Error; err != nil {
		if IsDuplicateKeyError(err) {
			return nil, utils.NewValidationError("contract number already exists")
		}
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetContractByNumber loads a contract with its termes.
func GetContractByNumber(ctx context.Context, contractNumber string) (*Contract, error) {
	var contract Contract
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("Termes").
		Where("contract_number = ?", contractNumber).First(&contract).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &contract, nil
}
