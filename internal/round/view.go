package round

import (
	"time"

	"qacc/internal/core"
)

// View is the JSON shape of a round.
type View struct {
	Type                       string    `json:"type"`
	RoundNumber                int       `json:"roundNumber"`
	SeasonNumber               *int      `json:"seasonNumber,omitempty"`
	EndDate                    time.Time `json:"endDate"`
	RoundPOLCloseCapPerProject *float64  `json:"roundPOLCloseCapPerProject,omitempty"`
	CumulativePOLCapPerProject *float64  `json:"cumulativePOLCapPerProject,omitempty"`
}

// NewView flattens r for JSON output.
func NewView(r core.Round) View {
	info := r.Info()
	v := View{
		RoundNumber:                info.RoundNumber,
		EndDate:                    info.EndDate,
		RoundPOLCloseCapPerProject: info.RoundPOLCloseCapPerProject,
		CumulativePOLCapPerProject: info.CumulativePOLCapPerProject,
	}
	switch rr := r.(type) {
	case core.QfRound:
		v.Type = "QfRound"
		v.SeasonNumber = &rr.SeasonNumber
	case *core.QfRound:
		v.Type = "QfRound"
		v.SeasonNumber = &rr.SeasonNumber
	default:
		v.Type = "EarlyAccessRound"
	}
	return v
}
