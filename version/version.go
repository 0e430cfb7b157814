package version

// will be replaced with the release version during the build
var version = "development"

// Version returns the MeshBoard build version
func Version() string {
	return version
}
