package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/model"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <deals-file>",
	Short: "Export a deals file to XLSX",
	Long:  "Writes a deals file as a spreadsheet, one row per deal, for merchandising review.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read deals file %s", args[0])
		}
		deals, err := model.ParseBatch(data)
		if err != nil {
			return eris.Wrapf(err, "parse deals file %s", args[0])
		}

		output := exportOutput
		if output == "" {
			output = strings.TrimSuffix(args[0], ".json") + ".xlsx"
		}

		if err := writeXLSX(output, deals); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("deals", len(deals)), zap.String("output", output))
		return nil
	},
}

var exportHeader = []string{
	"Product Name", "SKU", "Category", "Price", "Original Price", "Store",
	"Valid From", "Valid To", "Deal Type", "In-Store Only", "Conditions",
	"Bundle", "Required Purchase", "Free Item",
}

func writeXLSX(path string, deals []model.Deal) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Deals")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().Value = h
	}

	for _, d := range deals {
		row := sheet.AddRow()
		row.AddCell().Value = d.ProductName
		row.AddCell().Value = strOrEmpty(d.SKU)
		row.AddCell().Value = d.ProductCategory
		addPrice(row, d.Price)
		addPrice(row, d.OriginalPrice)
		row.AddCell().Value = d.Store
		row.AddCell().Value = strOrEmpty(d.ValidFrom)
		row.AddCell().Value = strOrEmpty(d.ValidTo)
		row.AddCell().Value = d.DealType
		row.AddCell().Value = fmt.Sprintf("%t", d.InStoreOnly)
		row.AddCell().Value = strings.Join(d.DealConditions, "; ")
		row.AddCell().Value = fmt.Sprintf("%t", d.BundleDeal)
		row.AddCell().Value = strOrEmpty(d.RequiredPurchase)
		row.AddCell().Value = strOrEmpty(d.FreeItem)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "save %s", path)
	}
	return nil
}

func addPrice(row *xlsx.Row, p *float64) {
	cell := row.AddCell()
	if p != nil {
		cell.SetFloatWithFormat(*p, "0.00")
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output .xlsx path (default derived from input)")
	rootCmd.AddCommand(exportCmd)
}
