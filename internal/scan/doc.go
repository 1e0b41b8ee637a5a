// Package scan runs a single smart-contract audit through the agent and attests successful
// reports.
package scan
