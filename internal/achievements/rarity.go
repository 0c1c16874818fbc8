package achievements

// maxScoreForRarity caps the reward score before it is turned into a rarity.
// The ceiling of 99 keeps every derived rarity at or above 1%.
const maxScoreForRarity = 99

// PercentFromScore derives a rarity percentage from a reward score when no
// community rarity is known: 100 - clamp(score, 0, 99).
func PercentFromScore(score uint32) float64 {
	return float64(100 - min(score, maxScoreForRarity))
}
