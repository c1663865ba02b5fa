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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

// RenderExcel renders the aggregated data as an xlsx workbook with one sheet
// per concern.
func RenderExcel(data *Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, data); err != nil {
		return nil, err
	}
	if err := writeDevicesSheet(f, data); err != nil {
		return nil, err
	}
	if err := writeAlertsSheet(f, data); err != nil {
		return nil, err
	}
	if err := writeTelemetrySheet(f, data); err != nil {
		return nil, err
	}
	if data.Analytics != nil {
		if err := writeAnalyticsSheet(f, data); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, data *Data) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("renaming summary sheet: %w", err)
	}
	rows := [][]any{
		{"Title", data.Title},
		{"Period start", data.PeriodStart.Format("2006-01-02")},
		{"Period end", data.PeriodEnd.Format("2006-01-02")},
		{"Devices", len(data.Devices)},
		{"Alerts", len(data.Alerts)},
	}
	for severity, count := range data.SeverityCounts {
		rows = append(rows, []any{"Alerts (" + string(severity) + ")", count})
	}
	return writeRows(f, sheet, rows)
}

func writeDevicesSheet(f *excelize.File, data *Data) error {
	const sheet = "Devices"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheet, err)
	}
	rows := [][]any{{"ID", "Key", "Name", "Manufacturer", "Model", "Active"}}
	for _, section := range data.Devices {
		d := section.Device
		rows = append(rows, []any{
			d.ID, d.DeviceKey, strOrEmpty(d.Name),
			strOrEmpty(d.Manufacturer), strOrEmpty(d.Model), d.IsActive,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeAlertsSheet(f *excelize.File, data *Data) error {
	const sheet = "Alerts"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheet, err)
	}
	rows := [][]any{{"Triggered", "Device", "Severity", "Message"}}
	for _, alert := range data.Alerts {
		rows = append(rows, []any{
			alert.TriggeredAt.Format("2006-01-02 15:04:05"),
			alert.DeviceID, string(alert.Severity), alert.Message,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeTelemetrySheet(f *excelize.File, data *Data) error {
	const sheet = "Telemetry"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheet, err)
	}
	rows := [][]any{{"Device", "Parameter", "Min", "Max", "Avg", "Samples"}}
	for _, section := range data.Devices {
		keys := make([]string, 0, len(section.Parameters))
		for k := range section.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			stats := section.Parameters[k]
			rows = append(rows, []any{
				deviceLabel(section.Device), k,
				stats.Min, stats.Max, stats.Avg, stats.Count,
			})
		}
	}
	return writeRows(f, sheet, rows)
}

func writeAnalyticsSheet(f *excelize.File, data *Data) error {
	const sheet = "Analytics"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheet, err)
	}
	body, err := json.MarshalIndent(data.Analytics, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding analytics section: %w", err)
	}
	return writeRows(f, sheet, [][]any{{"Result"}, {string(body)}})
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
