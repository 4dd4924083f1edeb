package capability

// Rongta printers do not report a model; every device prints with the same
// ESC/POS profile.
var rongtaTable = NewTable("rongta", []Profile{
	{
		Key:            "RONGTA_ESCPOS_80",
		Title:          "Rongta ESC/POS 80mm",
		Variants:       []string{"Rongta", "RPP", "RP3", "RP4", "RP8"},
		Dialect:        DialectEscPos,
		PaperWidthDots: widthThreeInch,
	},
})

// Rongta returns the Rongta model table.
func Rongta() *Table {
	return rongtaTable
}

// RongtaProfile returns the fixed Rongta profile.
func RongtaProfile() Profile {
	return rongtaTable.entries[0].clone()
}
