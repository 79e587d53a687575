package exports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/xuri/excelize/v2"
)

// Workbook is the spreadsheet handle handed back to HTTP handlers.
type Workbook = excelize.File

const sheetName = "Sheet1"

// SessionsLedger builds the daily session ledger workbook for the range,
// one row per operating day.
func SessionsLedger(ctx context.Context, from, to time.Time) (*Workbook, string, error) {
	sessions, err := models.ListSessions(ctx, from, to)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, "", err
	}

	f.SetCellValue(sheetName, "A1", "Date")
	f.SetCellValue(sheetName, "B1", "CashTotal")
	f.SetCellValue(sheetName, "C1", "Charges")
	f.SetCellValue(sheetName, "D1", "DepositAmount")
	f.SetCellValue(sheetName, "E1", "DepositDate")
	f.SetCellValue(sheetName, "F1", "Bank")
	f.SetCellValue(sheetName, "G1", "Status")
	f.SetCellValue(sheetName, "H1", "Remarks")

	for i, s := range sessions {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, s.SessionDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, "B"+row, s.CashTotal.StringFixed(3))
		f.SetCellValue(sheetName, "C"+row, s.Charges.StringFixed(3))
		f.SetCellValue(sheetName, "D"+row, s.DepositAmount.StringFixed(3))
		if s.DepositDate != nil {
			f.SetCellValue(sheetName, "E"+row, s.DepositDate.Format("2006-01-02"))
		}
		f.SetCellValue(sheetName, "F"+row, utils.DereferencePtr(s.Bank, ""))
		f.SetCellValue(sheetName, "G"+row, string(s.Status))
		f.SetCellValue(sheetName, "H"+row, utils.DereferencePtr(s.Remarks, ""))
	}

	name := fmt.Sprintf("sessions_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	return f, name, nil
}

// TermesDue lists the installments still pending on date, the collection
// worklist handed to the operator each morning.
func TermesDue(ctx context.Context, date time.Time) (*Workbook, string, error) {
	termes, err := models.ListTermesDue(ctx, date)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, "", err
	}

	f.SetCellValue(sheetName, "A1", "ContractNumber")
	f.SetCellValue(sheetName, "B1", "DueDate")
	f.SetCellValue(sheetName, "C1", "Premium")

	for i, t := range termes {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, t.ContractNumber)
		f.SetCellValue(sheetName, "B"+row, t.DueDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, "C"+row, t.Premium.StringFixed(3))
	}

	name := fmt.Sprintf("termes_due_%s.xlsx", date.Format("20060102"))
	return f, name, nil
}

// QuinzaineSummary writes one row per fortnight from start's month through
// today's. Fortnights without a persisted position show empty figures.
func QuinzaineSummary(ctx context.Context, start, today time.Time) (*Workbook, string, error) {
	windows := models.ListQuinzaines(start, today)

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, "", err
	}

	f.SetCellValue(sheetName, "A1", "Start")
	f.SetCellValue(sheetName, "B1", "End")
	f.SetCellValue(sheetName, "C1", "Gross")
	f.SetCellValue(sheetName, "D1", "Charges")
	f.SetCellValue(sheetName, "E1", "Expenses")
	f.SetCellValue(sheetName, "F1", "Net")
	f.SetCellValue(sheetName, "G1", "Status")

	for i, w := range windows {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, w.Start.Format("2006-01-02"))
		f.SetCellValue(sheetName, "B"+row, w.End.Format("2006-01-02"))

		q, err := models.GetQuinzaineByStart(ctx, w.Start)
		if err != nil {
			continue
		}
		f.SetCellValue(sheetName, "C"+row, q.Gross.StringFixed(3))
		f.SetCellValue(sheetName, "D"+row, q.Charges.StringFixed(3))
		f.SetCellValue(sheetName, "E"+row, q.Expenses.StringFixed(3))
		f.SetCellValue(sheetName, "F"+row, q.Net.StringFixed(3))
		f.SetCellValue(sheetName, "G"+row, string(q.Status))
	}

	name := fmt.Sprintf("quinzaines_%s_%s.xlsx", start.Format("20060102"), today.Format("20060102"))
	return f, name, nil
}

// Archive stores the workbook in the reports bucket and returns a signed
// download URL valid for 24 hours. Requires REPORTS_BUCKET (or falls back to
// the main GCS bucket).
func Archive(ctx context.Context, f *Workbook, name string) (string, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return "", err
	}

	prefix := os.Getenv("REPORTS_PREFIX")
	if prefix == "" {
		prefix = "reports"
	}
	objectKey := prefix + "/" + time.Now().Format("2006/01") + "/" + name

	if err := utils.UploadObjectToGCS(ctx, objectKey,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", &buf); err != nil {
		return "", err
	}

	return utils.SignedDownloadURL(ctx, objectKey, 24*time.Hour)
}
