// Package agent launches the external audit agent inside its container and captures
// what it prints.
//
// Credentials and notification secrets travel only through the environment of the
// container runtime client; the argument list names the variables without their
// values. Before each run the agent's auth-profile store is updated so the agent
// uses the credential chosen by the caller rather than a cached or cooled-down one.
package agent
