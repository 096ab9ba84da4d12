package version

// Version is the release version of the redirector
var Version = "2.0.0"
