package version

import "fmt"

// Version is set at link time with -ldflags "-X .../internal/version.Version=..."
var Version = "latest"

// Date is set at link time to when the binary was built
var Date = ""

// String describes the build for --version output and logs.
func String() string {
	if Date == "" {
		return fmt.Sprintf("ssdtf %s", Version)
	}
	return fmt.Sprintf("ssdtf %s (built %s)", Version, Date)
}
