package manufacturing

import (
	"fmt"
	"math/rand"
)

// word lists for human-shareable slugs; the trailing numeric id keeps a slug
// unique even when the word pair repeats.
var slugAdjectives = []string{
	"amber", "bold", "brisk", "calm", "cedar", "coral", "crisp", "dawn",
	"dusk", "ember", "fern", "frost", "gold", "hazel", "ivory", "jade",
	"keen", "lunar", "maple", "misty", "noble", "ochre", "pale", "quiet",
	"rapid", "rustic", "sable", "slate", "solar", "swift", "terra", "umber",
	"vivid", "warm", "wild", "zesty",
}

var slugNouns = []string{
	"badger", "bluff", "brook", "cliff", "comet", "crane", "delta", "drift",
	"falcon", "field", "finch", "fjord", "glade", "grove", "harbor", "heron",
	"inlet", "knoll", "lagoon", "larch", "meadow", "mesa", "otter", "peak",
	"pine", "plume", "ridge", "river", "sparrow", "spruce", "summit", "tide",
	"trail", "valley", "willow", "wren",
}

// NewSlug builds the shareable identifier for a unit, e.g. "amber-falcon-482".
// The package-level rand source is locked internally, so concurrent
// preparations can share it.
func NewSlug(seqNo int64) string {
	adj := slugAdjectives[rand.Intn(len(slugAdjectives))]
	noun := slugNouns[rand.Intn(len(slugNouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, seqNo)
}

// UnitID formats the structured numeric code printed on the physical tag.
func UnitID(seqNo int64) string {
	return fmt.Sprintf("QR%06d", seqNo)
}
