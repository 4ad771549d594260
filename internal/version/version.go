package version

// Version is the current version of the echa binaries.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/morichikawa/echa25/internal/version.Version=v1.0.0'"
var Version = "dev"
