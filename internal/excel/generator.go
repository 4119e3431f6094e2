package excel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/marketplace/internal/model"
)

const (
	summarySheet    = "Summary"
	professionSheet = "Professions"
	clientSheet     = "Clients"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Generate(report model.EarningsReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, report); err != nil {
		return nil, err
	}

	if _, err := file.NewSheet(professionSheet); err != nil {
		return nil, err
	}
	if err := g.writeProfessions(file, report.Professions); err != nil {
		return nil, err
	}

	if _, err := file.NewSheet(clientSheet); err != nil {
		return nil, err
	}
	if err := g.writeClients(file, report.Clients); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, report model.EarningsReport) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(summarySheet, cell, value)
	}

	set("A1", "Period start")
	set("B1", formatDate(report.PeriodStart))
	set("A2", "Period end")
	set("B2", formatDate(report.PeriodEnd))
	set("A3", "Total paid")
	set("B3", formatAmount(sumProfessions(report.Professions)))
	set("A4", "Best profession")
	set("B4", bestProfession(report.Professions))
	set("A5", "Paying clients")
	set("B5", len(report.Clients))

	return file.SetColWidth(summarySheet, "A", "B", 24)
}

func (g *Generator) writeProfessions(file *excelize.File, rows []model.ProfessionEarnings) error {
	writeHeader(file, professionSheet, "Rank", "Profession", "Earned")
	for i, row := range rows {
		line := i + 2
		_ = file.SetCellValue(professionSheet, fmt.Sprintf("A%d", line), i+1)
		_ = file.SetCellValue(professionSheet, fmt.Sprintf("B%d", line), row.Profession)
		_ = file.SetCellValue(professionSheet, fmt.Sprintf("C%d", line), formatAmount(row.Earned))
	}
	return file.SetColWidth(professionSheet, "B", "C", 24)
}

func (g *Generator) writeClients(file *excelize.File, rows []model.ClientPayments) error {
	writeHeader(file, clientSheet, "Rank", "Client ID", "Client", "Paid")
	for i, row := range rows {
		line := i + 2
		_ = file.SetCellValue(clientSheet, fmt.Sprintf("A%d", line), i+1)
		_ = file.SetCellValue(clientSheet, fmt.Sprintf("B%d", line), row.ID)
		_ = file.SetCellValue(clientSheet, fmt.Sprintf("C%d", line), row.FullName)
		_ = file.SetCellValue(clientSheet, fmt.Sprintf("D%d", line), formatAmount(row.Paid))
	}
	return file.SetColWidth(clientSheet, "C", "D", 32)
}

func writeHeader(file *excelize.File, sheet string, headers ...string) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}
}

func bestProfession(rows []model.ProfessionEarnings) string {
	if len(rows) == 0 {
		return ""
	}
	return rows[0].Profession
}

func sumProfessions(rows []model.ProfessionEarnings) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Earned)
	}
	return total
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
