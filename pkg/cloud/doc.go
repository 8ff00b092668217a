// Package cloud defines the compute collaborator contract the
// orchestrator consumes and provides the OCI SDK-backed implementation.
package cloud
