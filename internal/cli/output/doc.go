// Package output renders CLI results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: reflection-driven tables with wide mode
//   - json.go, yaml.go: machine-readable output
//   - spinner.go: progress animation on interactive terminals
package output
