// Package provision describes the host setup ussal-server expects.
//
// Installation is performed by an external one-shot step run as root. This
// package renders the artefacts that step installs (a systemd unit and a
// sudoers rule) and verifies the postconditions at startup. It never
// creates accounts or edits system files itself.
package provision
