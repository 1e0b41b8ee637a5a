// Package pathutils expands home-relative paths found in configuration and command flags.
package pathutils
