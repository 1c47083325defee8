package proj

import "runtime"

// Environment is the host capability profile the loader runs under.
// The zero value means "detect".
type Environment int

const (
	// EnvironmentUnknown is an embedding host without a loader-relative
	// filesystem or network. Resources must be supplied by the caller.
	EnvironmentUnknown Environment = iota + 1
	// EnvironmentServer reads resources from the local filesystem.
	EnvironmentServer
	// EnvironmentBrowser fetches resources over HTTP.
	EnvironmentBrowser
)

// String returns the label of the environment.
func (e Environment) String() string {
	switch e {
	case EnvironmentServer:
		return "server"
	case EnvironmentBrowser:
		return "browser"
	case EnvironmentUnknown:
		return "unknown"
	default:
		return "auto"
	}
}

// DetectEnvironment classifies the current host.
func DetectEnvironment() Environment {
	return detectEnvironment(runtime.GOOS)
}

// detectEnvironment maps a GOOS to a host profile.
func detectEnvironment(goos string) Environment {
	switch goos {
	case "js":
		return EnvironmentBrowser
	case "wasip1", "wasip2":
		return EnvironmentUnknown
	default:
		return EnvironmentServer
	}
}
