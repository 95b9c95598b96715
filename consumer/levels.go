package consumer

// Member levels, lowest first.
const (
	LevelBronze  = "bronze"
	LevelSilver  = "silver"
	LevelGold    = "gold"
	LevelDiamond = "diamond"
)

var thresholds = []struct {
	min   int
	level string
}{
	{10000, LevelDiamond},
	{5000, LevelGold},
	{1000, LevelSilver},
}

// LevelFor returns the level a member with points holds.
func LevelFor(points int) string {
	for _, t := range thresholds {
		if points >= t.min {
			return t.level
		}
	}

	return LevelBronze
}

// Rank orders levels from bronze (0) to diamond (3). Unknown levels return -1.
func Rank(level string) int {
	switch level {
	case LevelBronze:
		return 0
	case LevelSilver:
		return 1
	case LevelGold:
		return 2
	case LevelDiamond:
		return 3
	default:
		return -1
	}
}
