// Package config provides the ussal-cli profile file.
//
// The file (~/.ussal/cli.yaml by default) holds named connection profiles
// so the orchestrator address, trust roots and auth token need not be
// repeated on every invocation:
//
//	current_profile: lab
//	output: table
//	profiles:
//	  lab:
//	    address: bench.example.com
//	    ca_file: /etc/ussal/ca.pem
//	    auth_token: ussal_...
//
// Flags and environment variables always take precedence over the file.
// A file that holds an auth token must not be readable by group or others.
package config
