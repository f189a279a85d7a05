// Package report renders dashboard statistics into spreadsheets.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

const (
	summarySheet   = "Summary"
	reviewersSheet = "Reviewers"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// stageOrder lists stages in workflow order for the summary table
var stageOrder = []workflow.Stage{
	workflow.StageSubmitted,
	workflow.StageFinancialReview,
	workflow.StagePaymentApproved,
	workflow.StageFinalReview,
	workflow.StageApproved,
	workflow.StageCompleted,
	workflow.StageRejected,
}

var financialOrder = []entity.FinancialStatus{
	entity.FinancialPending,
	entity.FinancialUnderReview,
	entity.FinancialApproved,
	entity.FinancialRejected,
}

// WorkbookRenderer implements port.StatisticsRenderer with excelize
type WorkbookRenderer struct {
	organisation string
	logger       *zap.Logger
}

var _ port.StatisticsRenderer = (*WorkbookRenderer)(nil)

// NewWorkbookRenderer creates a renderer. organisation is written into the title row.
func NewWorkbookRenderer(organisation string, logger *zap.Logger) *WorkbookRenderer {
	return &WorkbookRenderer{
		organisation: organisation,
		logger:       logger,
	}
}

func (r *WorkbookRenderer) ContentType() string {
	return xlsxContentType
}

// RenderStatistics writes a Summary sheet with stage and financial status
// counts and a Reviewers sheet with per-reviewer throughput
func (r *WorkbookRenderer) RenderStatistics(stats *entity.WorkflowStatistics, filter entity.StatisticsFilter) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(reviewersSheet); err != nil {
		return nil, fmt.Errorf("failed to add reviewers sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	r.writeSummary(f, stats, filter, bold, percent)
	r.writeReviewers(f, stats, bold)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Statistics workbook rendered",
		zap.String("entity_type", string(stats.EntityType)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (r *WorkbookRenderer) writeSummary(f *excelize.File, stats *entity.WorkflowStatistics, filter entity.StatisticsFilter, bold, percent int) {
	row := 1
	title := fmt.Sprintf("%s workflow statistics", r.organisation)
	r.setRow(f, summarySheet, row, title)
	r.style(f, summarySheet, row, row, bold)
	row++

	r.setRow(f, summarySheet, row, "Entity type", string(stats.EntityType))
	row++
	r.setRow(f, summarySheet, row, "Generated at", stats.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	row++
	for _, line := range filterLines(filter) {
		r.setRow(f, summarySheet, row, line[0], line[1])
		row++
	}
	row++

	r.setRow(f, summarySheet, row, "Stage", "Count")
	r.style(f, summarySheet, row, row, bold)
	row++
	for _, stage := range stageOrder {
		r.setRow(f, summarySheet, row, string(stage), stats.ByStage[stage])
		row++
	}
	r.setRow(f, summarySheet, row, "Total", stats.Total)
	r.style(f, summarySheet, row, row, bold)
	row += 2

	r.setRow(f, summarySheet, row, "Financial status", "Count")
	r.style(f, summarySheet, row, row, bold)
	row++
	for _, fs := range financialOrder {
		r.setRow(f, summarySheet, row, string(fs), stats.ByFinancialStatus[fs])
		row++
	}
	row++

	r.setRow(f, summarySheet, row, "Pending financial review", stats.PendingFinancialReview)
	row++
	r.setRow(f, summarySheet, row, "Pending final review", stats.PendingFinalReview)
	row++
	rateStart := row
	r.setRow(f, summarySheet, row, "Approval rate", stats.ApprovalRate)
	row++
	r.setRow(f, summarySheet, row, "Rejection rate", stats.RejectionRate)
	r.style(f, summarySheet, rateStart, row, percent)

	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		r.logger.Warn("Failed to set column width", zap.Error(err))
	}
}

func (r *WorkbookRenderer) writeReviewers(f *excelize.File, stats *entity.WorkflowStatistics, bold int) {
	r.setRow(f, reviewersSheet, 1, "User ID", "Role", "Actions", "Approvals", "Rejections")
	r.style(f, reviewersSheet, 1, 1, bold)

	reviewers := append([]entity.ReviewerThroughput(nil), stats.Reviewers...)
	sort.SliceStable(reviewers, func(i, j int) bool {
		return reviewers[i].Actions > reviewers[j].Actions
	})
	for i, rv := range reviewers {
		r.setRow(f, reviewersSheet, i+2, rv.UserID, string(rv.Role), rv.Actions, rv.Approvals, rv.Rejects)
	}
}

// setRow writes values into consecutive columns starting at A
func (r *WorkbookRenderer) setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		r.logger.Warn("Invalid cell coordinates", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		r.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

func (r *WorkbookRenderer) style(f *excelize.File, sheet string, fromRow, toRow, style int) {
	from, _ := excelize.CoordinatesToCellName(1, fromRow)
	to, _ := excelize.CoordinatesToCellName(5, toRow)
	if err := f.SetCellStyle(sheet, from, to, style); err != nil {
		r.logger.Warn("Failed to set style", zap.String("sheet", sheet), zap.Error(err))
	}
}

func filterLines(filter entity.StatisticsFilter) [][2]string {
	var lines [][2]string
	if filter.Stage != nil {
		lines = append(lines, [2]string{"Stage filter", string(*filter.Stage)})
	}
	if filter.DateFrom != nil {
		lines = append(lines, [2]string{"From", filter.DateFrom.UTC().Format("2006-01-02")})
	}
	if filter.DateTo != nil {
		lines = append(lines, [2]string{"To", filter.DateTo.UTC().Format("2006-01-02")})
	}
	if filter.ReviewerID != nil {
		lines = append(lines, [2]string{"Reviewer", fmt.Sprintf("%d", *filter.ReviewerID)})
	}
	return lines
}
