package overlay

import (
	"fmt"

	"github.com/dgnsrekt/mintlens/internal/mintinfo"
)

type fieldFormat int

const (
	formatRaw fieldFormat = iota
	formatBaseUnits
)

type field struct {
	label   string
	section string // "" means top level
	key     string
	format  fieldFormat
}

// Amount fields are scaled by decimals; counts and authorities are shown as
// the service sent them.
var fields = []field{
	{label: "Decimals", key: "decimals", format: formatRaw},
	{label: "Supply", section: "mintStats", key: "supply", format: formatBaseUnits},
	{label: "Mint Authority", section: "mintStats", key: "mintAuthority", format: formatRaw},
	{label: "Freeze Authority", section: "mintStats", key: "freezeAuthority", format: formatRaw},
	{label: "Holders", section: "holderStats", key: "totalHolders", format: formatRaw},
	{label: "Top 10 Holdings", section: "holderStats", key: "top10Balance", format: formatBaseUnits},
	{label: "Top Holder", section: "holderStats", key: "topHolderBalance", format: formatBaseUnits},
}

const notAvailable = "N/A"

// buildRows extracts display rows. A missing stats object is an extraction
// failure; a missing leaf is shown as N/A.
func buildRows(res mintinfo.Result, defaultDecimals int, f *Formatter) ([]Row, error) {
	sections := map[string]map[string]any{"": res}
	for _, name := range []string{"mintStats", "holderStats"} {
		obj, ok := res.Object(name)
		if !ok {
			return nil, fmt.Errorf("overlay: lookup result missing %s", name)
		}
		sections[name] = obj
	}

	decimals := res.Decimals(defaultDecimals)
	rows := make([]Row, 0, len(fields))
	for _, fd := range fields {
		raw, ok := mintinfo.Scalar(sections[fd.section][fd.key])
		if !ok {
			rows = append(rows, Row{Label: fd.label, Value: notAvailable})
			continue
		}
		val := raw
		if fd.format == formatBaseUnits {
			val = f.BaseUnits(raw, decimals)
		}
		rows = append(rows, Row{Label: fd.label, Value: val})
	}
	return rows, nil
}
