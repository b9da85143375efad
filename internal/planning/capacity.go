package planning

import "razmkar/internal/domain"

// BlockLabel is the display data of a time block.
type BlockLabel struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Settings is the planning configuration a Planner works against.
type Settings struct {
	TagMap           map[string]string
	CategoryPriority []string
	Blocks           []string
	BlockLabels      map[string]BlockLabel
	BlockPoints      map[string]int
	MissionPoints    map[string]int
	AllowOverflow    bool
	Workdays         []string
}

func (s Settings) Classifier() Classifier {
	return Classifier{TagMap: s.TagMap, Priority: s.CategoryPriority}
}

// Classify returns the category and tags of a mission.
func (s Settings) Classify(m domain.Mission) (string, []string) {
	return s.Classifier().Classify(m.Texts()...)
}

// PointsFor returns the mission's category and the points it costs.
// Categories without a configured cost count 1.
func (s Settings) PointsFor(m domain.Mission) (string, int) {
	cat, _ := s.Classify(m)
	return cat, s.CategoryPoints(cat)
}

func (s Settings) CategoryPoints(cat string) int {
	if p, ok := s.MissionPoints[cat]; ok {
		return p
	}
	return 1
}

// CapacityFor returns a block's capacity; unconfigured blocks hold 1 point.
func (s Settings) CapacityFor(block string) int {
	if c, ok := s.BlockPoints[block]; ok {
		return c
	}
	return 1
}

// Block is a fully resolved time block.
type Block struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Capacity int    `json:"capacity"`
}

// ResolvedBlocks returns the configured blocks in order with labels and capacity.
func (s Settings) ResolvedBlocks() []Block {
	res := make([]Block, 0, len(s.Blocks))
	for _, name := range s.Blocks {
		b := Block{Name: name, Label: name, Capacity: s.CapacityFor(name)}
		if l, ok := s.BlockLabels[name]; ok {
			if l.Label != "" {
				b.Label = l.Label
			}
			b.Start, b.End = l.Start, l.End
		}
		res = append(res, b)
	}
	return res
}
