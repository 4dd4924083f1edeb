package capability

// Paper widths in dots.
const (
	widthTwoInch       = 384
	widthTwoInch300DPI = 576
	widthThreeInch     = 576
	widthFourInch      = 832
	widthEscPosThreeIn = 512
	widthDotThreeInch  = 210
	widthSK1TwoInch    = 432
	widthEpsonImpact   = 200
	widthEpsonHybrid   = 512
)

type epsonModel struct {
	name   string
	series string
	width  int
}

// Every Epson model name is its own profile; the key is the printer series.
var epsonModels = []epsonModel{
	// TM-m
	{"TM-m10", "TM_M10", widthTwoInch},
	{"TM-m30", "TM_M30", widthThreeInch},
	{"TM-m30II", "TM_M30II", widthThreeInch},
	{"TM-m30II-H", "TM_M30II", widthThreeInch},
	{"TM-m30II-NT", "TM_M30II", widthThreeInch},
	{"TM-m30II-S", "TM_M30II", widthThreeInch},
	{"TM-m30II-SL", "TM_M30II", widthThreeInch},
	{"TM-m30III", "TM_M30III", widthThreeInch},
	{"TM-m30III-H", "TM_M30III", widthThreeInch},
	{"TM-m50", "TM_M50", widthThreeInch},
	{"TM-m50II", "TM_M50II", widthThreeInch},
	{"TM-m50II-H", "TM_M50II", widthThreeInch},
	{"TM-m55", "TM_M55", widthTwoInch},

	// TM-T20
	{"TM-T20", "TM_T20", widthThreeInch},
	{"TM-T20II", "TM_T20", widthThreeInch},
	{"TM-T20III", "TM_T20", widthThreeInch},
	{"TM-T20IIIL", "TM_T20", widthThreeInch},
	{"TM-T20X", "TM_T20", widthThreeInch},
	{"TM-T20II-i", "TM_T20", widthThreeInch},

	// TM-T60 / T70
	{"TM-T60", "TM_T60", widthThreeInch},
	{"TM-T70", "TM_T70", widthThreeInch},
	{"TM-T70II", "TM_T70", widthThreeInch},
	{"TM-T70-i", "TM_T70", widthThreeInch},
	{"TM-T70II-DT", "TM_T70", widthThreeInch},
	{"TM-T70II-DT2", "TM_T70", widthThreeInch},

	// TM-T81
	{"TM-T81II", "TM_T81", widthThreeInch},
	{"TM-T81III", "TM_T81", widthThreeInch},

	// TM-T82
	{"TM-T82", "TM_T82", widthThreeInch},
	{"TM-T82II", "TM_T82", widthThreeInch},
	{"TM-T82III", "TM_T82", widthThreeInch},
	{"TM-T82IIIL", "TM_T82", widthThreeInch},
	{"TM-T82X", "TM_T82", widthThreeInch},
	{"TM-T82II-i", "TM_T82", widthThreeInch},

	// TM-T83
	{"TM-T83II", "TM_T83", widthThreeInch},
	{"TM-T83II-i", "TM_T83", widthThreeInch},
	{"TM-T83III", "TM_T83III", widthThreeInch},

	// TM-T88
	{"TM-T88IV", "TM_T88", widthThreeInch},
	{"TM-T88V", "TM_T88", widthThreeInch},
	{"TM-T88VI", "TM_T88", widthThreeInch},
	{"TM-T88VII", "TM_T88VII", widthThreeInch},
	{"TM-T88V-i", "TM_T88", widthThreeInch},
	{"TM-T88VI-iHUB", "TM_T88", widthThreeInch},
	{"TM-T88V-DT", "TM_T88", widthThreeInch},
	{"TM-T88VI-DT2", "TM_T88", widthThreeInch},

	// TM-T90
	{"TM-T90", "TM_T90", widthThreeInch},
	{"TM-T90KP", "TM_T90KP", widthThreeInch},

	{"TM-T100", "TM_T100", widthThreeInch},

	// TM-L (label)
	{"TM-L90", "TM_L90", widthThreeInch},
	{"TM-L90LFC", "TM_L90LFC", widthThreeInch},
	{"TM-L100", "TM_L100", widthThreeInch},

	// TM-U (impact)
	{"TM-U220", "TM_U220", widthEpsonImpact},
	{"TM-U220-i", "TM_U220", widthEpsonImpact},
	{"TM-U220II", "TM_U220II", widthEpsonImpact},
	{"TM-U330", "TM_U330", widthEpsonImpact},

	// TM-P (portable)
	{"TM-P20", "TM_P20", widthTwoInch},
	{"TM-P20II", "TM_P20II", widthTwoInch},
	{"TM-P60", "TM_P60", widthTwoInch},
	{"TM-P60II", "TM_P60II", widthTwoInch},
	{"TM-P80", "TM_P80", widthThreeInch},
	{"TM-P80II", "TM_P80II", widthThreeInch},

	// TM-H (hybrid)
	{"TM-H6000IV", "TM_H6000", widthEpsonHybrid},
	{"TM-H6000IV-DT", "TM_H6000", widthEpsonHybrid},
	{"TM-H6000V", "TM_H6000", widthEpsonHybrid},

	{"EU-m30", "EU_M30", widthThreeInch},
	{"TS-100", "TS_100", widthThreeInch},
}

var epsonTable = NewTable("epson", epsonProfiles(), MatchContained())

// Epson returns the Epson model table.
func Epson() *Table {
	return epsonTable
}

func epsonProfiles() []Profile {
	profiles := make([]Profile, 0, len(epsonModels))
	for _, m := range epsonModels {
		profiles = append(profiles, Profile{
			Key:            m.series,
			Title:          m.name,
			Variants:       []string{m.name},
			Dialect:        DialectEscPos,
			PaperWidthDots: m.width,
		})
	}
	return profiles
}
