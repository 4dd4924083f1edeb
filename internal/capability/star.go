package capability

var starTable = NewTable("star", []Profile{
	{
		Key:            "MPOP",
		Title:          "mPOP",
		Variants:       []string{"STAR mPOP-", "mPOP"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "FVP10",
		Title:          "FVP10",
		Variants:       []string{"FVP10 (STR_T-001)", "Star FVP10"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:   "TSP100",
		Title: "TSP100",
		Variants: []string{
			"TSP113", "TSP143", "TSP100-", "Star TSP113", "Star TSP143",
			"TSP100IIIW", "TSP100IIILAN", "TSP100IIIBI", "TSP100IIIU",
			"TSP100IIU+", "TSP100ECO", "TSP100U", "TSP100GT", "TSP100LAN",
		},
		Dialect:        DialectStarGraphic,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP650II",
		Title:          "TSP650II",
		Variants:       []string{"TSP654II (STR_T-001)", "TSP654 (STR_T-001)", "TSP651 (STR_T-001)"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP700II",
		Title:          "TSP700II",
		Variants:       []string{"TSP743II (STR_T-001)", "TSP743 (STR_T-001)"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP800II",
		Title:          "TSP800II",
		Variants:       []string{"TSP847II (STR_T-001)", "TSP847 (STR_T-001)"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthFourInch,
	},
	{
		Key:            "SP700",
		Title:          "SP700",
		Variants:       []string{"SP712 (STR-001)", "SP717 (STR-001)", "SP742 (STR-001)", "SP747 (STR-001)"},
		Dialect:        DialectStarDotImpact,
		PaperWidthDots: widthDotThreeInch,
	},
	{
		Key:            "SM_S210I",
		Title:          "SM-S210i",
		Variants:       []string{"SM-S210i-"},
		Dialect:        DialectEscPosMobile,
		PortSettings:   "mini",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_S220I",
		Title:          "SM-S220i",
		Variants:       []string{"SM-S220i-"},
		Dialect:        DialectEscPosMobile,
		PortSettings:   "mini",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_S230I",
		Title:          "SM-S230i",
		Variants:       []string{"SM-S230i-"},
		Dialect:        DialectEscPosMobile,
		PortSettings:   "mini",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_T300I_T300",
		Title:          "SM-T300i/T300",
		Variants:       []string{"SM-T300i-", "SM-T300-"},
		Dialect:        DialectEscPosMobile,
		PortSettings:   "mini",
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "SM_T400I",
		Title:          "SM-T400i",
		Variants:       []string{"SM-T400i-"},
		Dialect:        DialectEscPosMobile,
		PortSettings:   "mini",
		PaperWidthDots: widthFourInch,
	},
	{
		Key:            "SM_L200",
		Title:          "SM-L200",
		Variants:       []string{"STAR L200-", "STAR L204-"},
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "BSC10",
		Title:          "BSC10",
		Variants:       []string{"BSC10 (STR_T-001)", "BSC10", "Star BSC10"},
		Dialect:        DialectEscPos,
		PortSettings:   "escpos",
		PaperWidthDots: widthEscPosThreeIn,
	},
	{
		Key:            "SM_S210I_STARPRNT",
		Title:          "SM-S210i StarPRNT",
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_S220I_STARPRNT",
		Title:          "SM-S220i StarPRNT",
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_S230I_STARPRNT",
		Title:          "SM-S230i StarPRNT",
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "SM_T300I_T300_STARPRNT",
		Title:          "SM-T300i StarPRNT",
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "SM_T400I_STARPRNT",
		Title:          "SM-T400i StarPRNT",
		Dialect:        DialectStarPRNT,
		PortSettings:   "Portable",
		PaperWidthDots: widthFourInch,
	},
	{
		Key:            "SM_L300",
		Title:          "SM-L300",
		Variants:       []string{"STAR L300-", "STAR L304-"},
		Dialect:        DialectStarPRNTL,
		PortSettings:   "Portable",
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "MC_PRINT2",
		Title:          "mC-Print2",
		Variants:       []string{"MCP20 (STR-001)", "MCP21 (STR-001)", "mC-Print2-", "mC-Print2"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthTwoInch,
	},
	{
		Key:            "MC_PRINT3",
		Title:          "mC-Print3",
		Variants:       []string{"MCP30 (STR-001)", "MCP31 (STR-001)", "mC-Print3-", "mC-Print3"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TUP500",
		Title:          "TUP500",
		Variants:       []string{"TUP592 (STR_T-001)", "TUP542 (STR_T-001)"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "SK1_211_221_V211",
		Title:          "SK1-211/221/V211",
		Variants:       []string{"SK1-211_221", "SK1-211", "SK1-221", "SK1-V211"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthSK1TwoInch,
	},
	{
		Key:            "SK1_211_221_V211_PRESENTER",
		Title:          "SK1-211/221/V211 Presenter",
		Variants:       []string{"SK1-211_221 Presenter", "SK1-211 Presenter", "SK1-221 Presenter"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthSK1TwoInch,
	},
	{
		Key:            "SK1_311_321_V311",
		Title:          "SK1-311/321/V311",
		Variants:       []string{"SK1-311_321", "SK1-311", "SK1-321", "SK1-V311"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "SK1_311_V311_PRESENTER",
		Title:          "SK1-311/V311 Presenter",
		Variants:       []string{"SK1-311 Presenter", "SK1-V311 Presenter"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "MC_LABEL2",
		Title:          "mC-Label2",
		Variants:       []string{"MCL20 (STR-001)", "MCL21 (STR-001)", "mC-Label2-", "mC-Label2"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthTwoInch300DPI,
	},
	{
		Key:            "MC_LABEL3",
		Title:          "mC-Label3",
		Variants:       []string{"MCL30 (STR-001)", "MCL31 (STR-001)", "mC-Label3-", "mC-Label3"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP100IV",
		Title:          "TSP100IV",
		Variants:       []string{"TSP143IV (STR_T-001)", "TSP143IV-", "Star TSP143IV"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP100IV_SK",
		Title:          "TSP100IV SK",
		Variants:       []string{"TSP143IV SK", "TSP143IVSK"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "TSP650IISK",
		Title:          "TSP650IISK",
		Variants:       []string{"TSP654IISK", "TSP651IISK"},
		Dialect:        DialectStarLine,
		PaperWidthDots: widthThreeInch,
	},
	{
		Key:            "BSC10II",
		Title:          "BSC10II",
		Variants:       []string{"BSC10II (STR_T-001)", "BSC10II", "Star BSC10II"},
		Dialect:        DialectStarPRNT,
		PaperWidthDots: widthEscPosThreeIn,
	},
})

// Star returns the Star Micronics model table.
func Star() *Table {
	return starTable
}
