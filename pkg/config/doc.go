// Package config builds the immutable configuration record for a felix
// pass from environment variables and JSON guardrail files. Core
// packages receive the record explicitly and never read the environment.
package config
