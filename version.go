package projwasm

// PROJ WASI reactor version information.
const (
	// Version is the upstream PROJ version the engine binary is built from.
	Version = "9.6.2"

	// DatabaseLayoutMajor is the proj.db layout major version this PROJ
	// release reads.
	DatabaseLayoutMajor = 1

	// SourceURL is the upstream repository URL.
	SourceURL = "https://github.com/OSGeo/PROJ"
)
