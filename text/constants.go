package text

const (
	// ComplexModWordCountThreshold is the maximum word count (per side) for a
	// replaced span to still be highlighted at character level.
	ComplexModWordCountThreshold = 2

	// MaxWordCountDifference is the maximum difference in word count between
	// deleted and inserted text for character-level highlighting.
	MaxWordCountDifference = 1

	// MinLengthForEmptyDeletion is the insertion length above which an
	// empty-deletion + insertion is shown as a whole-line replacement.
	MinLengthForEmptyDeletion = 10

	// SingleWordMaxRatio and SingleWordMinRatio bound the length ratio of
	// single-word replacements. Outside these bounds the line is replaced.
	SingleWordMaxRatio = 3.0
	SingleWordMinRatio = 0.33

	// MultiWordMaxRatio and MultiWordMinRatio bound the length ratio of
	// multi-word replacements. Stricter than the single-word bounds.
	MultiWordMaxRatio = 2.0
	MultiWordMinRatio = 0.5
)
