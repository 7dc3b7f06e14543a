// Package tlsroots builds the trust pool clients use to verify the ussal
// server: the system roots, optionally extended with operator CA files for
// self-signed or private deployments.
package tlsroots
