package update

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/views"
)

// buildReport reads every day and aggregates it for the current view.
func (m Model) buildReport() ([]report.Bar, error) {
	if m.deps.Sessions == nil {
		return nil, nil
	}
	if err := m.deps.Sessions.LoadAll(m.ctx); err != nil {
		return nil, err
	}
	return report.Aggregate(m.deps.Sessions.Days(), m.Report.View, m.deps.Report)
}

func (m Model) refreshReport() Model {
	bars, err := m.buildReport()
	if err != nil {
		m.setError(err)
		return m
	}
	m.Report.Bars = bars
	return m
}

func (m Model) setReportView(view report.View) Model {
	m.Report.View = view
	m = m.refreshReport()
	if !m.Status.IsError {
		m.Status = StatusBar{Text: "report: " + string(view)}
	}
	return m
}

func (m Model) handleReportKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "y":
		return m.setReportView(report.ViewYearly)
	case "m":
		return m.setReportView(report.ViewMonthly)
	case "w":
		return m.setReportView(report.ViewWeekly)
	case "r":
		return m.refreshReport()
	}
	return m
}

func (m Model) renderReportView() string {
	data := views.ReportPanelData{View: string(m.Report.View), Height: 10}
	for _, bar := range m.Report.Bars {
		data.Bars = append(data.Bars, views.BarData{Label: bar.Label, Value: bar.Value})
	}
	return views.RenderReportPanel(data)
}
