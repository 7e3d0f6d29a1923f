package hierarchy

import "sort"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// fixed slots for the upper levels of a chart; anything beyond falls back to
// a regular grid
var levelSlots = map[int][]Point{
	1: {{1000, 200}},
	2: {{400, 800}, {800, 800}, {1200, 800}, {1600, 800}},
	3: {{200, 1400}, {600, 1400}, {1000, 1400}, {1400, 1400}, {1800, 1400}},
}

// CalculateLayoutCoordinates places every levelled node on the canvas. It
// only reads the level map, so a layout bug cannot alter hierarchy data.
// Nodes on the same level are ordered by the less function, or by id when
// less is nil.
func CalculateLayoutCoordinates(levels Levels, less func(a, b string) bool) map[string]Point {
	byLevel := make(map[int][]string)
	for id, lvl := range levels.Levels {
		byLevel[lvl] = append(byLevel[lvl], id)
	}
	if less == nil {
		less = func(a, b string) bool { return a < b }
	}

	out := make(map[string]Point, len(levels.Levels))
	for lvl, ids := range byLevel {
		sort.Slice(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
		slots := levelSlots[lvl]
		for i, id := range ids {
			if i < len(slots) {
				out[id] = slots[i]
				continue
			}
			out[id] = Point{
				X: float64(200 + i*400),
				Y: float64(200 + (lvl-1)*600),
			}
		}
	}
	return out
}
