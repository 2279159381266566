package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"carbonledger/services"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportSheet = "Field Data"

var exportHeader = []string{
	"Record ID",
	"Plot ID",
	"Project ID",
	"Status",
	"Submitted By",
	"Verified By",
	"Collection Date",
	"GPS Latitude",
	"GPS Longitude",
	"Species",
	"DBH",
	"Tree Height",
	"Plot Density",
	"Canopy Cover",
	"Survival Rate",
	"Sample Depth",
	"Bulk Density",
	"Organic Matter",
	"Soil Organic Carbon",
	"Soil pH",
	"Soil Texture",
	"Soil Moisture",
	"Water Table Depth",
	"Salinity",
	"Water pH",
	"Water Temperature",
	"Dissolved Oxygen",
	"Tidal Range",
	"Management Event",
	"Photo North",
	"Photo South",
	"Photo East",
	"Photo West",
	"Additional Photos",
	"Soil Lab Results",
	"Verification Notes",
	"Created At",
	"Updated At",
}

func cellString(p *string) any {
	if p == nil {
		return ""
	}
	return *p
}

func cellNumber(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func exportRow(v *services.FieldDataView) []any {
	collected := ""
	if v.CollectionDate != nil {
		collected = v.CollectionDate.Format("2006-01-02")
	}
	submitter := v.OwnerID
	if v.SubmittedBy != nil && v.SubmittedBy.Email != "" {
		submitter = v.SubmittedBy.Email
	}
	verifier := v.VerifierID
	if v.VerifiedBy != nil && v.VerifiedBy.Email != "" {
		verifier = v.VerifiedBy.Email
	}

	var north, south, east, west bool
	additional := 0
	if p := v.Photos; p != nil {
		north, south, east, west = p.North != "", p.South != "", p.East != "", p.West != ""
		additional = len(p.Additional)
	}

	return []any{
		v.ID,
		cellString(v.PlotID),
		cellString(v.ProjectID),
		string(v.Status),
		submitter,
		verifier,
		collected,
		cellNumber(v.GPSLatitude),
		cellNumber(v.GPSLongitude),
		cellString(v.Species),
		cellNumber(v.DBH),
		cellNumber(v.TreeHeight),
		cellNumber(v.PlotDensity),
		cellNumber(v.CanopyCover),
		cellNumber(v.SurvivalRate),
		cellNumber(v.SampleDepth),
		cellNumber(v.BulkDensity),
		cellNumber(v.OrganicMatter),
		cellNumber(v.SoilOrganicCarbon),
		cellNumber(v.SoilPH),
		cellString(v.SoilTexture),
		cellNumber(v.SoilMoisture),
		cellNumber(v.WaterTableDepth),
		cellNumber(v.Salinity),
		cellNumber(v.WaterPH),
		cellNumber(v.WaterTemperature),
		cellNumber(v.DissolvedOxygen),
		cellNumber(v.TidalRange),
		cellString(v.ManagementEvent),
		north,
		south,
		east,
		west,
		additional,
		v.SoilLabResults != nil && *v.SoilLabResults != "",
		cellString(v.VerificationNotes),
		v.CreatedAt.Format(time.RFC3339),
		v.UpdatedAt.Format(time.RFC3339),
	}
}

func csvCell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Export handles GET /api/field-data/export?format=csv|xlsx. It accepts the
// same filters as ListAll.
func (h *FieldDataHandler) Export(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, "Unsupported export format. Use csv or xlsx", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ListAll(r.Context(), c, listQuery(r))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to export field data")
		return
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("field_data_%s.%s", timestamp, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if format == "xlsx" {
		err = writeXLSX(w, res.FieldData)
	} else {
		err = writeCSV(w, res.FieldData)
	}
	if err != nil {
		// Headers are already written.
		h.logger.Error("failed to write export", zap.String("format", format), zap.Error(err))
		return
	}

	h.logger.Info("📊 field data exported",
		zap.String("user_id", c.ID),
		zap.String("format", format),
		zap.Int("records", res.Count),
	)
}

func writeCSV(w http.ResponseWriter, views []*services.FieldDataView) error {
	w.Header().Set("Content-Type", "text/csv")

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(exportHeader))
	for _, v := range views {
		for i, cell := range exportRow(v) {
			record[i] = csvCell(cell)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeXLSX(w http.ResponseWriter, views []*services.FieldDataView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, name := range exportHeader {
		header[i] = name
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(v)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
