// Luthien is a mediating proxy for OpenAI-compatible chat completions.
//
// Every request passes through a configurable tree of policies that can
// authenticate callers, rewrite requests, call the backend, transform
// buffered or streamed responses, and record an audit trail.
//
// Usage:
//
//	# Start the proxy
//	luthien run --config config.yaml
//
//	# Check the configuration and build the policy tree without serving
//	luthien validate --config config.yaml
//
//	# Print the loaded policy tree
//	luthien policy tree
//
//	# Copy a YAML policy file into the SQLite store
//	luthien policy import policies.yaml
//
//	# Issue a client key in the SQLite credential store
//	luthien keys add --principal alice
package main

import "os"

func main() {
	os.Exit(Execute())
}
