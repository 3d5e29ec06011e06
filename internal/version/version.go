package version

// Set at build time via -ldflags "-X ...".
var (
	AppName    = "Velvet"
	AppVersion = "dev"
)
