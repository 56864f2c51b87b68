package history

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Version history"

var workbookHeadings = []string{
	"Date",
	"Description",
	"Assessment version",
	"Assessment status",
	"Plan version",
	"Plan status",
	"Plan agreement status",
	"Countersigned assessment version",
	"Countersigned plan version",
}

// WriteWorkbook renders the reconciled feed as a single-sheet xlsx document.
func WriteWorkbook(w io.Writer, oasysAssessmentPk string, buckets []VersionsOnDate) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Version history for OASys PK %s", oasysAssessmentPk),
		Creator: "coordinator",
	}); err != nil {
		return err
	}

	header := make([]interface{}, len(workbookHeadings))
	for i, h := range workbookHeadings {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	for i, b := range buckets {
		row := []interface{}{
			b.Date,
			b.Description,
			versionCell(b.Regular.Assessment),
			statusCell(b.Regular.Assessment),
			versionCell(b.Regular.Plan),
			statusCell(b.Regular.Plan),
			agreementCell(b.Regular.Plan),
			versionCell(b.Countersigned.Assessment),
			versionCell(b.Countersigned.Plan),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func versionCell(v *models.VersionDetails) interface{} {
	if v == nil {
		return ""
	}
	return v.Version
}

func statusCell(v *models.VersionDetails) string {
	if v == nil {
		return ""
	}
	return v.Status
}

func agreementCell(v *models.VersionDetails) string {
	if v == nil || v.AgreementStatus == nil {
		return ""
	}
	return *v.AgreementStatus
}
