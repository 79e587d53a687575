package models

// ReferenceType tags outbox records and polymorphic references with the
// entity kind they point at.
type ReferenceType string

const (
	ReferenceTypeCashMovement  ReferenceType = "CM"
	ReferenceTypeSession       ReferenceType = "SN"
	ReferenceTypeCreditPayment ReferenceType = "CRP"
	ReferenceTypeTerme         ReferenceType = "TR"
	ReferenceTypeExpense       ReferenceType = "EXP"
	ReferenceTypeCheque        ReferenceType = "CHQ"
	ReferenceTypeQuinzaine     ReferenceType = "QZ"
)

type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "C"
	ChangeActionUpdate ChangeAction = "U"
	ChangeActionDelete ChangeAction = "D"
)

// CashMovementKind partitions the immutable cash log.
type CashMovementKind string

const (
	CashMovementKindReceipt            CashMovementKind = "Receipt"
	CashMovementKindExceptionalReceipt CashMovementKind = "ExceptionalReceipt"
	CashMovementKindDisbursement       CashMovementKind = "Disbursement"
)

type PaymentMode string

const (
	PaymentModeCash     PaymentMode = "Cash"
	PaymentModeCheque   PaymentMode = "Cheque"
	PaymentModeTransfer PaymentMode = "Transfer"
	PaymentModeCard     PaymentMode = "Card"
)

func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeCash, PaymentModeCheque, PaymentModeTransfer, PaymentModeCard:
		return true
	}
	return false
}

// SessionStatus is derived: a session becomes Deposited exactly once,
// when its cash is carried to the bank.
type SessionStatus string

const (
	SessionStatusNotDeposited SessionStatus = "NotDeposited"
	SessionStatusDeposited    SessionStatus = "Deposited"
)

type CreditStatus string

const (
	CreditStatusUnpaid        CreditStatus = "Unpaid"
	CreditStatusPartiallyPaid CreditStatus = "PartiallyPaid"
	CreditStatusFullyPaid     CreditStatus = "FullyPaid"
)

type TermeStatus string

const (
	// TermeStatusCollected is the only non-null terme status; a pending
	// terme carries NULL, matching how the rows are filtered.
	TermeStatusCollected TermeStatus = "Encaissé"
)

type ChequeStatus string

const (
	ChequeStatusReceived ChequeStatus = "Received"
	ChequeStatusRemitted ChequeStatus = "Remitted"
	ChequeStatusCleared  ChequeStatus = "Cleared"
	ChequeStatusBounced  ChequeStatus = "Bounced"
)

type QuinzaineStatus string

const (
	QuinzaineStatusNotSettled QuinzaineStatus = "NotSettled"
	QuinzaineStatusSettled    QuinzaineStatus = "Settled"
)

// ContractPeriodicity drives how many termes a contract generates per year.
type ContractPeriodicity string

const (
	PeriodicityAnnual     ContractPeriodicity = "Annual"
	PeriodicitySemiAnnual ContractPeriodicity = "SemiAnnual"
	PeriodicityQuarterly  ContractPeriodicity = "Quarterly"
	PeriodicityMonthly    ContractPeriodicity = "Monthly"
)

// TermesPerYear returns how many installments a year splits into.
func (p ContractPeriodicity) TermesPerYear() int {
	switch p {
	case PeriodicitySemiAnnual:
		return 2
	case PeriodicityQuarterly:
		return 4
	case PeriodicityMonthly:
		return 12
	default:
		return 1
	}
}

func (p ContractPeriodicity) IsValid() bool {
	switch p {
	case PeriodicityAnnual, PeriodicitySemiAnnual, PeriodicityQuarterly, PeriodicityMonthly:
		return true
	}
	return false
}

// Expense categories excluded from quinzaine operating expenses. These are
// cash carries, not running costs of the agency.
var NonOperatingExpenseLabels = []string{
	"Versement Bancaire",
	"Prélèvement Gérant",
	"Récupération Avance Client",
}

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
)
