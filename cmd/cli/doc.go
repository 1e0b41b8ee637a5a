// Package cli constructs the clawaudit command-line interface. It wires the Cobra command
// hierarchy, the Viper configuration loader, zap logging and the audit services behind the
// serve, scan, proof, trail, remediate, dev-update and config commands.
package cli
