package animation

// Tier selects the quantizer range used for re-encoding.
type Tier int

const (
	Standard Tier = iota
	High
)

func (t Tier) String() string {
	if t == High {
		return "high"
	}
	return "standard"
}

// crfOffset turns the direct strategy's minimum quantizer into the single
// quality scalar of the streaming strategy.
const crfOffset = 10

// Profile is derived purely from the quality flag and the target rate.
type Profile struct {
	Tier            Tier
	MinQuant        int
	MaxQuant        int
	TargetFrameRate float64
}

func NewProfile(high bool, targetFrameRate float64) Profile {
	if high {
		return Profile{Tier: High, MinQuant: 15, MaxQuant: 20, TargetFrameRate: targetFrameRate}
	}
	return Profile{Tier: Standard, MinQuant: 25, MaxQuant: 30, TargetFrameRate: targetFrameRate}
}

// CRF is the quality scalar for SequencedStream encodes.
//
// NOTE: minQuant+10 is coarser than the MinQuant..MaxQuant range the direct
// strategy uses (25 vs 15-20 for High, 35 vs 25-30 for Standard), so long
// animations come out at lower quality than short ones. Kept until
// visual parity between the two strategies is confirmed.
func (p Profile) CRF() int {
	return p.MinQuant + crfOffset
}
