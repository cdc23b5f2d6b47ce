package config

import "runtime"

// Platform describes the detected host platform. Neither the status nor
// the --test-lifecycle output includes it.
type Platform struct {
	OS   string
	Arch string
}

// DetectPlatform detects the host platform.
func DetectPlatform() *Platform {
	return &Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}
