package go_aurena

import (
	"fmt"
	"runtime"
)

var version string

func VersionNumberString() string {
	if len(version) > 0 {
		return version
	}

	return "dev"
}

func VersionString() string {
	return fmt.Sprintf("go-aurena %s", VersionNumberString())
}

func SystemInfoString() string {
	return fmt.Sprintf("%s; Go %s (%s %s)", VersionString(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func UserAgent() string {
	return fmt.Sprintf("go-aurena/%s Go/%s", VersionNumberString(), runtime.Version())
}
