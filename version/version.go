package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = RelaySemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// RelaySemVer is the current version of the lane relay.
	// It's the Semantic Version of the software.
	RelaySemVer = "0.1.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// LaneProtocol versions the lane state and proof formats the relay
	// expects from both ledgers.
	LaneProtocol Protocol = 1

	// LedgerProtocol versions the storage layout of the simulated ledgers.
	LedgerProtocol Protocol = 1
)
