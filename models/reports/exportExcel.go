package reports

import (
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"github.com/xuri/excelize/v2"
)

const sequenceAuditSheet = "Sequences"

var sequenceAuditHeadings = []string{
	"Format", "Scope", "Count", "MaxSequence", "Gaps", "Duplicates", "Malformed", "Healthy",
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}

// sequenceAuditWorkbook lays out one row per scope under a heading row.
func sequenceAuditWorkbook(audits []*models.ScopeAudit) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sequenceAuditSheet); err != nil {
		return nil, err
	}

	// Add headers
	for i, h := range sequenceAuditHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sequenceAuditSheet, cell, h)
	}

	// Add data
	for i, a := range audits {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sequenceAuditSheet, "A"+row, a.Format)
		f.SetCellValue(sequenceAuditSheet, "B"+row, a.Scope)
		f.SetCellValue(sequenceAuditSheet, "C"+row, a.Count)
		f.SetCellValue(sequenceAuditSheet, "D"+row, a.MaxSequence)
		f.SetCellValue(sequenceAuditSheet, "E"+row, joinInts(a.Gaps))
		f.SetCellValue(sequenceAuditSheet, "F"+row, joinInts(a.Duplicates))
		f.SetCellValue(sequenceAuditSheet, "G"+row, strings.Join(a.Malformed, ","))
		healthy := "yes"
		if !a.Healthy() {
			healthy = "no"
		}
		f.SetCellValue(sequenceAuditSheet, "H"+row, healthy)
	}
	return f, nil
}

func ExportSequenceAudit(audits []*models.ScopeAudit, filename string) error {
	f, err := sequenceAuditWorkbook(audits)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}

func WriteSequenceAudit(w io.Writer, audits []*models.ScopeAudit) error {
	f, err := sequenceAuditWorkbook(audits)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
