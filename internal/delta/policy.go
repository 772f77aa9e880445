package delta

import (
	"fmt"

	"github.com/openaddresses/batch-sub000/internal/models"
)

// Threshold is the ratio at or under which a drop counts as a regression.
const Threshold = 0.9

// addressFields must stay populated in address layers.
var addressFields = []string{"number", "street"}

// Regressions applies the regression policy to compare against master and
// returns one human-readable message per finding. No messages means no
// regression.
func Regressions(compare, master *models.Job) []string {
	var msgs []string

	if master.Count > 0 {
		ratio := float64(compare.Count) / float64(master.Count)
		if ratio <= Threshold {
			msgs = append(msgs, fmt.Sprintf("Feature count dropped by %.1f%% (%d to %d)",
				(1-ratio)*100, master.Count, compare.Count))
		}
	}

	if compare.Layer != "addresses" {
		return msgs
	}

	cStats, mStats := plain(compare.Stats), plain(master.Stats)
	for _, field := range addressFields {
		cPop, ok := lookupFloat(cStats, "counts", field)
		if !ok {
			continue
		}
		if cPop == 0 {
			msgs = append(msgs, fmt.Sprintf("%s field is empty", field))
			continue
		}
		mPop, ok := lookupFloat(mStats, "counts", field)
		if !ok || mPop == 0 || compare.Count == 0 || master.Count == 0 {
			continue
		}
		cRatio := cPop / float64(compare.Count)
		mRatio := mPop / float64(master.Count)
		if cRatio/mRatio < Threshold {
			msgs = append(msgs, fmt.Sprintf("%s field population dropped from %.1f%% to %.1f%%",
				field, mRatio*100, cRatio*100))
		}
	}

	valid, ok := lookupFloat(cStats, "validity", "valid")
	if !ok {
		valid = float64(compare.Count)
	}
	if valid == 0 {
		msgs = append(msgs, "No valid address features")
	}
	return msgs
}
