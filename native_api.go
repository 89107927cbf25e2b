package sqliter

import (
	"fmt"
	"runtime"
)

// NativeInfo reports the status of the system SQLite library used by NativeEngine.
type NativeInfo struct {
	Available    bool   // Whether libsqlite3 was loaded and bound
	Architecture string // Current architecture (arm64, amd64, etc.)
	Platform     string // Current platform (darwin, linux, windows)
	Path         string // Path the library was loaded from, if available
	Version      string // Library version as reported by sqlite3_libversion
	Error        string // Error message if the library failed to load
}

// GetNativeInfo returns detailed information about the system SQLite library.
func GetNativeInfo() NativeInfo {
	// This will trigger loading if it hasn't happened yet
	loadNativeLibrary()

	info := NativeInfo{
		Available:    nativeLibLoaded,
		Architecture: runtime.GOARCH,
		Platform:     runtime.GOOS,
		Path:         nativeLibPath,
	}

	if nativeLibLoaded {
		info.Version = sqlite3Libversion()
	}
	if nativeLibError != nil {
		info.Error = nativeLibError.Error()
	}

	return info
}

// String returns a human-readable summary of the native library status
func (i NativeInfo) String() string {
	if i.Available {
		return fmt.Sprintf("Native SQLite: Available\nPlatform: %s/%s\nVersion: %s\nLibrary: %s",
			i.Platform, i.Architecture, i.Version, i.Path)
	}

	return fmt.Sprintf("Native SQLite: Not available\nPlatform: %s/%s\nError: %s",
		i.Platform, i.Architecture, i.Error)
}

// VersionInfo describes the package and the engines it can drive.
type VersionInfo struct {
	PackageVersion string // Version of this package
	BundledVersion string // SQLite version of the pure Go engine
	NativeVersion  string // SQLite version of the system library, if loaded
	GoVersion      string // Go runtime version
}

// PackageVersion is the version of go-sqliter.
const PackageVersion = "0.1.0"

// GetVersionInfo returns version information about the package and its engines
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		PackageVersion: PackageVersion,
		BundledVersion: ModerncEngine{}.Version(),
		NativeVersion:  NativeEngine{}.Version(),
		GoVersion:      runtime.Version(),
	}
}

// String returns a human-readable summary of version information
func (v VersionInfo) String() string {
	native := v.NativeVersion
	if native == "" {
		native = "Not available"
	}

	return fmt.Sprintf("go-sqliter version: %s\nBundled SQLite: %s\nNative SQLite: %s\nGo version: %s",
		v.PackageVersion, v.BundledVersion, native, v.GoVersion)
}
