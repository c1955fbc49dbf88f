package tape

import (
	"os/exec"

	"github.com/mwantia/gotape/pkg/faults"
)

// Toolset holds the resolved paths of the external tools the tape layer
// shells out to. tar and dd are hard requirements; mt is optional but
// positioning, rewind and eject degrade without it.
type Toolset struct {
	Tar string
	DD  string
	MT  string
}

// DiscoverTools resolves the external tool paths once at startup.
// A missing tar or dd is a dependency failure and aborts construction.
func DiscoverTools() (*Toolset, error) {
	tools := &Toolset{}

	tar, err := exec.LookPath("tar")
	if err != nil {
		return nil, faults.Dependency("tape.discover", "required tool 'tar' not found in PATH")
	}
	tools.Tar = tar

	dd, err := exec.LookPath("dd")
	if err != nil {
		return nil, faults.Dependency("tape.discover", "required tool 'dd' not found in PATH")
	}
	tools.DD = dd

	// Optional: mt availability only degrades positioning
	if mt, err := exec.LookPath("mt"); err == nil {
		tools.MT = mt
	}

	return tools, nil
}

// HasMT reports whether the mt positioning tool is available.
func (t *Toolset) HasMT() bool {
	return t.MT != ""
}
