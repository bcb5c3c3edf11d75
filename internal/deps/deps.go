// Package deps reports which external tools voicetext can find on the host.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// Tool is an external program voicetext may shell out to.
type Tool struct {
	Name        string
	Purpose     string
	VersionArgs []string
	Required    bool
}

// Tools lists every external program, capture first.
var Tools = []Tool{
	{Name: "pw-record", Purpose: "audio capture (PipeWire)", VersionArgs: []string{"--version"}, Required: true},
	{Name: "ydotool", Purpose: "text injection", VersionArgs: []string{"help"}},
	{Name: "wtype", Purpose: "text injection (wlroots)", VersionArgs: nil},
	{Name: "wl-copy", Purpose: "clipboard injection", VersionArgs: []string{"--version"}},
	{Name: "notify-send", Purpose: "desktop notifications", VersionArgs: []string{"--version"}},
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Check reports the status of the named program.
func Check(name string, versionArgs ...string) Status {
	path, err := lookPath(name)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}
	if len(versionArgs) == 0 {
		return status
	}

	// first line of the version output is enough for doctor
	output, err := exec.Command(path, versionArgs...).CombinedOutput()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}

	return status
}

// CheckPwRecord checks if pw-record is installed and returns its status
func CheckPwRecord() Status {
	return Check("pw-record", "--version")
}

// CheckInjectionTools returns the status of each injection backend's
// program, keyed by backend name.
func CheckInjectionTools() map[string]Status {
	return map[string]Status{
		"ydotool":   Check("ydotool"),
		"wtype":     Check("wtype"),
		"clipboard": Check("wl-copy"),
	}
}

// Report pairs each Tool with its status.
type Report struct {
	Tool   Tool
	Status Status
}

// CheckAll checks every entry in Tools.
func CheckAll() []Report {
	reports := make([]Report, 0, len(Tools))
	for _, tool := range Tools {
		reports = append(reports, Report{Tool: tool, Status: Check(tool.Name, tool.VersionArgs...)})
	}
	return reports
}

// MissingRequired returns the names of required tools that are not installed.
func MissingRequired(reports []Report) []string {
	var missing []string
	for _, r := range reports {
		if r.Tool.Required && !r.Status.Installed {
			missing = append(missing, r.Tool.Name)
		}
	}
	return missing
}
