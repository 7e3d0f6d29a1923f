package chart

import "math"

type Stats struct {
	Total        int     `json:"total"`
	Occupied     int     `json:"occupied"`
	Vacant       int     `json:"vacant"`
	OccupancyPct float64 `json:"occupancy_pct"`
	Levels       int     `json:"levels"`
}

func ComputeStats(d Data) Stats {
	s := Stats{Total: len(d.Positions)}
	levels := map[int]struct{}{}
	for _, p := range d.Positions {
		if p.IsVacant() {
			s.Vacant++
		} else {
			s.Occupied++
		}
		levels[p.Level] = struct{}{}
	}
	s.Levels = len(levels)
	if s.Total > 0 {
		s.OccupancyPct = math.Round(float64(s.Occupied)/float64(s.Total)*1000) / 10
	}
	return s
}
