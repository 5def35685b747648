package export

import (
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/minocc/internal/domain/model"
)

var xlsxHeaders = []any{
	"context", "job", "epoch", "trialtype", "phase",
	"min_spikes", "max_spikes", "min_occ",
	"binsize", "unit", "winlen", "percentile_poiss", "percentile_rates",
	"abs_min_spikes", "abs_min_occ",
}

// XLSX writes one sheet per session with one row per job. Unbounded jobs
// leave max_spikes empty.
func XLSX(w io.Writer, cat model.Catalogue) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const defaultSheet = "Sheet1"
	sessions := cat.Sessions()
	if len(sessions) == 0 {
		if err := f.SetSheetRow(defaultSheet, "A1", &xlsxHeaders); err != nil {
			return err
		}
		_, err := f.WriteTo(w)
		return err
	}

	for i, session := range sessions {
		sheet := SheetName(session)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		if err := f.SetSheetRow(sheet, "A1", &xlsxHeaders); err != nil {
			return err
		}

		row := 2
		for _, label := range cat.Contexts(session) {
			jobs, _ := cat.Jobs(session, label)
			for idx, j := range jobs {
				var maxSpikes any
				if !j.Unbounded() {
					maxSpikes = j.MaxSize()
				}
				values := []any{
					label, idx, j.Epoch, j.TrialType, string(j.Phase),
					j.MinPatternSize, maxSpikes, j.OccurrenceThreshold,
					j.BinWidth, string(j.Unit), j.WindowLength, j.PercentilePoisson, j.PercentileRates,
					j.AbsMinSpikes, j.AbsMinOccurrences,
				}
				cell, err := excelize.CoordinatesToCellName(1, row)
				if err != nil {
					return err
				}
				if err := f.SetSheetRow(sheet, cell, &values); err != nil {
					return err
				}
				row++
			}
		}
	}

	f.SetActiveSheet(0)
	_, err := f.WriteTo(w)
	return err
}

// SheetName maps a session name onto the characters and length Excel
// accepts for sheet names.
func SheetName(session string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, session)
	name = strings.Trim(name, "'")
	if name == "" {
		name = "session"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}
