package forks

// MantleForkName identifies a Mantle network upgrade. Mantle upgrades are scheduled
// independently of the upstream forks in All.
type MantleForkName string

const (
	MantleSkadi MantleForkName = "MantleSkadi"
	MantleNone  MantleForkName = ""
)

var AllMantleForks = []MantleForkName{
	MantleSkadi,
}

// IsValidMantleFork returns true if the provided fork is a known Mantle fork.
func IsValidMantleFork(fork MantleForkName) bool {
	for _, f := range AllMantleForks {
		if f == fork {
			return true
		}
	}
	return false
}
