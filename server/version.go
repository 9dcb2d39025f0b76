package server

// Version of the driftlog server.
// This variable can be overridden at build time using:
//
//	go build -ldflags "-X github.com/driftlog/driftlog/server.Version=v1.0.0"
var Version = "dev"
