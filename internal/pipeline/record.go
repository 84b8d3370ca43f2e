package pipeline

import (
	"strings"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/sheet"
)

// cell returns the trimmed value of a mapped column, or "" when the field is
// unmapped or the row is too short. Ragged rows are common in provider
// exports and must read as absent fields, not errors.
func cell(row []string, mapping sheet.ColumnIndexMap, field sheet.Field) string {
	idx, ok := mapping[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// buildRecord projects one data row through the column mapping into a
// vehicle record. Numeric fields stay as raw text; parsing happens at
// scoring time.
func buildRecord(row []string, mapping sheet.ColumnIndexMap) model.VehicleRecord {
	return model.VehicleRecord{
		Manufacturer:   cell(row, mapping, sheet.FieldManufacturer),
		Model:          cell(row, mapping, sheet.FieldModel),
		CapID:          cell(row, mapping, sheet.FieldCapID),
		MonthlyPayment: cell(row, mapping, sheet.FieldMonthlyPayment),
		P11D:           cell(row, mapping, sheet.FieldP11D),
		OTRPrice:       cell(row, mapping, sheet.FieldOTRPrice),
		Term:           cell(row, mapping, sheet.FieldTerm),
		Mileage:        cell(row, mapping, sheet.FieldMileage),
		Upfront:        cell(row, mapping, sheet.FieldUpfront),
		MPG:            cell(row, mapping, sheet.FieldMPG),
		CO2:            cell(row, mapping, sheet.FieldCO2),
		FuelType:       cell(row, mapping, sheet.FieldFuelType),
		MilesPerKWh:    cell(row, mapping, sheet.FieldMilesPerKWh),
		KWhPer100Km:    cell(row, mapping, sheet.FieldKWhPer100Km),
		ElectricRange:  cell(row, mapping, sheet.FieldElectricRange),
		InsuranceGroup: cell(row, mapping, sheet.FieldInsuranceGroup),
	}
}
