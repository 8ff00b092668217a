// Package inventory resolves cloud instance OCIDs to cluster hostnames
// through the external management CLI.
package inventory
