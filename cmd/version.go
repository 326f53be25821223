package cmd

// Version is the application version. It is set at build time:
// go build -ldflags "-X github.com/xkilldash9x/cadrefs/cmd.Version=1.2.0"
var Version = "dev"
