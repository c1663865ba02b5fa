/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/factoryops/factoryops/pkg/models"
)

const pdfTopAnomalies = 20

// RenderPDF renders the aggregated data as a PDF document.
func RenderPDF(data *Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)

	renderCover(pdf, data)
	renderExecutiveSummary(pdf, data)
	renderEnergyOverview(pdf, data)
	renderDeviceTables(pdf, data)
	renderAlertsLog(pdf, data)
	if data.Analytics != nil {
		renderAnalyticsSection(pdf, data)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderCover(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 60, "", "", 1, "", false, 0, "")
	pdf.CellFormat(0, 12, data.Title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Period: %s to %s",
		data.PeriodStart.Format("2006-01-02"),
		data.PeriodEnd.Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("%d devices", len(data.Devices)),
		"", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, "Generated "+data.GeneratedAt.Format(time.RFC3339),
		"", 1, "C", false, 0, "")
}

func renderExecutiveSummary(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	sectionTitle(pdf, "Executive Summary")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Devices covered: %d", len(data.Devices)),
		"", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Alerts in period: %d", len(data.Alerts)),
		"", 1, "", false, 0, "")

	for _, severity := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh,
		models.SeverityMedium, models.SeverityLow,
	} {
		if count := data.SeverityCounts[severity]; count > 0 {
			pdf.CellFormat(0, 7, fmt.Sprintf("  %s: %d", severity, count),
				"", 1, "", false, 0, "")
		}
	}
}

// renderEnergyOverview lists the devices that reported power.
func renderEnergyOverview(pdf *fpdf.Fpdf, data *Data) {
	type powerRow struct {
		name  string
		stats statsRow
	}
	var rows []powerRow
	for _, section := range data.Devices {
		if stats, ok := section.Parameters["power"]; ok {
			rows = append(rows, powerRow{
				name: deviceLabel(section.Device),
				stats: statsRow{
					min: stats.Min, max: stats.Max,
					avg: stats.Avg, count: stats.Count,
				},
			})
		}
	}
	if len(rows) == 0 {
		return
	}

	sectionTitle(pdf, "Energy Overview")
	tableHeader(pdf, []string{"Device", "Min", "Max", "Avg", "Samples"})
	for _, row := range rows {
		tableCells(pdf, []string{
			row.name,
			fmt.Sprintf("%.2f", row.stats.min),
			fmt.Sprintf("%.2f", row.stats.max),
			fmt.Sprintf("%.2f", row.stats.avg),
			fmt.Sprintf("%d", row.stats.count),
		})
	}
}

func renderDeviceTables(pdf *fpdf.Fpdf, data *Data) {
	for _, section := range data.Devices {
		pdf.AddPage()
		sectionTitle(pdf, "Device: "+deviceLabel(section.Device))

		if len(section.Parameters) == 0 {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.CellFormat(0, 7, "No telemetry in period", "", 1, "", false, 0, "")
			continue
		}

		keys := make([]string, 0, len(section.Parameters))
		for k := range section.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tableHeader(pdf, []string{"Parameter", "Min", "Max", "Avg", "Samples"})
		for _, k := range keys {
			stats := section.Parameters[k]
			tableCells(pdf, []string{
				k,
				fmt.Sprintf("%.2f", stats.Min),
				fmt.Sprintf("%.2f", stats.Max),
				fmt.Sprintf("%.2f", stats.Avg),
				fmt.Sprintf("%d", stats.Count),
			})
		}
	}
}

func renderAlertsLog(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	sectionTitle(pdf, "Alerts Log")

	if len(data.Alerts) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 7, "No alerts in period", "", 1, "", false, 0, "")
		return
	}

	tableHeader(pdf, []string{"Triggered", "Severity", "Message"})
	for _, alert := range data.Alerts {
		tableCells(pdf, []string{
			alert.TriggeredAt.Format("2006-01-02 15:04"),
			string(alert.Severity),
			truncate(alert.Message, 70),
		})
	}
}

func renderAnalyticsSection(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	sectionTitle(pdf, "Analytics")
	pdf.SetFont("Helvetica", "", 10)

	if anomalies, ok := data.Analytics["anomalies"].([]any); ok {
		top := anomalies
		if len(top) > pdfTopAnomalies {
			top = top[:pdfTopAnomalies]
		}
		pdf.CellFormat(0, 7, fmt.Sprintf("Top %d anomalies:", len(top)),
			"", 1, "", false, 0, "")
		for _, entry := range top {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			pdf.CellFormat(0, 6, fmt.Sprintf("  device %v at %v, score %.3f",
				m["device_id"], m["timestamp"], toFloat(m["score"])),
				"", 1, "", false, 0, "")
		}
	}
	if horizon, ok := data.Analytics["horizon_days"]; ok {
		pdf.CellFormat(0, 7, fmt.Sprintf("Energy forecast horizon: %v days", horizon),
			"", 1, "", false, 0, "")
	}
	if summary, ok := data.Analytics["summary"].(string); ok {
		pdf.CellFormat(0, 7, "Summary: "+summary, "", 1, "", false, 0, "")
	}
}

type statsRow struct {
	min, max, avg float64
	count         int
}

func sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, title, "", 1, "", false, 0, "")
	pdf.Ln(2)
}

func tableHeader(pdf *fpdf.Fpdf, headers []string) {
	pdf.SetFont("Helvetica", "B", 10)
	width := 190.0 / float64(len(headers))
	for _, h := range headers {
		pdf.CellFormat(width, 8, h, "1", 0, "", false, 0, "")
	}
	pdf.Ln(-1)
}

func tableCells(pdf *fpdf.Fpdf, cells []string) {
	pdf.SetFont("Helvetica", "", 9)
	width := 190.0 / float64(len(cells))
	for _, c := range cells {
		pdf.CellFormat(width, 7, c, "1", 0, "", false, 0, "")
	}
	pdf.Ln(-1)
}

func deviceLabel(device models.Device) string {
	if device.Name != nil && *device.Name != "" {
		return *device.Name
	}
	return device.DeviceKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
