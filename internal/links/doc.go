// Package links defines the core types and interfaces for the link
// discovery, classification, and retrieval pipeline. It includes the
// candidate/classified link records, per-link fetch dispositions, and the
// batch summary returned to callers.
package links
