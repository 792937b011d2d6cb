package settings

import "sync"

type Arguments struct {
	// The file path to the archive root. The original products live under
	// <ArchiveRoot>/<OrigDirName> and derived products are written under
	// <ArchiveRoot>/<XtraDirName>.
	ArchiveRoot string
	OrigDirName string
	XtraDirName string

	// Directory labels for the derived-product kinds. The archive
	// documentation spells these inconsistently (anc vs aux), so they are
	// configuration, not constants.
	AncKindName string
	SrfKindName string

	LogDir     string
	ConfigFile string

	// Number of workers used by batch runs
	Workers int

	// Half-width of the surface-echo search window, in range bins
	SurfaceWindow int

	// Strongly verbose logging
	Verbose bool

	Debug         bool
	PrintToScreen bool

	Version string
}

// Private instance and mutex for thread safety
var (
	instance *Arguments
	mu       sync.RWMutex
)

// GetSettings returns the global settings instance, creating a default
// one on first use.
func GetSettings() *Arguments {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		instance = defaultArguments()
	}
	return instance
}

// ResetSettings is useful for testing - it resets the singleton
func ResetSettings() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

func defaultArguments() *Arguments {
	return &Arguments{
		ArchiveRoot:   "./data",
		OrigDirName:   "orig/lrs",
		XtraDirName:   "xtra/lrs",
		AncKindName:   "anc",
		SrfKindName:   "srf",
		Workers:       4,
		SurfaceWindow: 100,
	}
}
