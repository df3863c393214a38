package sheet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/origin-cli/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Costing")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "costing.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestCleanHeader(t *testing.T) {
	assert.Equal(t, "country_of_origin", CleanHeader(" Country Of Origin "))
	assert.Equal(t, "fob_with_tooling", CleanHeader("FOB With Tooling"))
	assert.Equal(t, "cost_pair", CleanHeader("Cost/Pair"))
}

func TestMapColumns(t *testing.T) {
	keys := MapColumns([]string{"Supplier", "COO", "Tariff Code", "Unit Cost", "Component", "Notes"})
	assert.Equal(t, []string{
		model.KeyManufacturer,
		model.KeyCountryOfOrigin,
		model.KeyHSCode,
		model.KeyCostPerPair,
		model.KeyMaterialName,
		"notes",
	}, keys)
}

func TestMapColumns_AliasPriority(t *testing.T) {
	// "material_name" outranks "description" even when it appears later.
	keys := MapColumns([]string{"Description", "Material Name"})
	assert.Equal(t, []string{"description", model.KeyMaterialName}, keys)
}

func TestNormalize(t *testing.T) {
	rows := Normalize([][]string{
		{"Manufacturer", "Country of Origin", "HS Code", "Cost per Pair", "Material Name"},
		{"Acme", "VN", "", "", ""},
		{"", "", "", "", ""},
		{"", "CN", "640610", "1.50", "Sole"},
		{"", "CN", "420100", "abc", "Strap"},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, "Acme", rows[0].String(model.KeyManufacturer))
	assert.Equal(t, "VN", rows[0].String(model.KeyCountryOfOrigin))

	cost, ok := rows[1].Float(model.KeyCostPerPair)
	require.True(t, ok)
	assert.InDelta(t, 1.5, cost, 1e-9)
	assert.Equal(t, "640610", rows[1].String(model.KeyHSCode))

	_, ok = rows[2].Float(model.KeyCostPerPair)
	assert.False(t, ok, "non-numeric cost must read as absent")
}

func TestNormalize_NonFiniteCostIsAbsent(t *testing.T) {
	rows := Normalize([][]string{
		{"Material Name", "Country of Origin", "Cost per Pair", "FOB"},
		{"Sole", "CN", "Infinity", "-Inf"},
		{"Heel", "CN", "1e308", ""},
	})

	require.Len(t, rows, 2)
	_, ok := rows[0].Float(model.KeyCostPerPair)
	assert.False(t, ok)
	assert.NotContains(t, rows[0], model.KeyCostPerPair)
	assert.NotContains(t, rows[0], model.KeyFOBWithTooling)

	cost, ok := rows[1].Float(model.KeyCostPerPair)
	require.True(t, ok)
	assert.Equal(t, 1e308, cost)
}

func TestNormalize_ManufacturerFromContent(t *testing.T) {
	rows := Normalize([][]string{
		{"Material", "Country", "HS"},
		{"Manufacturer: Saigon Footwear Co", "", ""},
		{"Sole", "CN", "640610"},
	})

	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "Saigon Footwear Co", r.String(model.KeyManufacturer))
	}
}

func TestNormalize_Empty(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Empty(t, Normalize([][]string{{"a", "b"}}))
}

func TestReadCSV_BOMAndTrim(t *testing.T) {
	input := "\xEF\xBB\xBFmanufacturer,hs_code\n Acme , 640610 \n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"manufacturer", "hs_code"}, rows[0])
	assert.Equal(t, []string{"Acme", "640610"}, rows[1])
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Manufacturer", "Country of Origin", "HS Code", "Cost per Pair", "Material Name"},
		{"Acme", "VN", "", "", ""},
		{"", "CN", "640610", "1.5", "Sole"},
	})

	rows, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sole", rows[1].String(model.KeyMaterialName))
}

func TestLoad_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costing.csv")
	require.NoError(t, os.WriteFile(path, []byte("mfg,origin,hs,price,component\nAcme,VN,,,\n,CN,640610,1.5,Sole\n"), 0o644))

	rows, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[0].String(model.KeyManufacturer))
	assert.Equal(t, "CN", rows[1].String(model.KeyCountryOfOrigin))
}

func TestLoadReader_Unsupported(t *testing.T) {
	_, err := LoadReader(context.Background(), "legacy.xls", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedFormat))
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed("costing.XLSX"))
	assert.True(t, Allowed("costing.xls"))
	assert.True(t, Allowed("costing.csv"))
	assert.False(t, Allowed("costing.pdf"))
	assert.False(t, Allowed("costing"))
}
