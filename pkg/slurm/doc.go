// Package slurm is the workload-manager collaborator: node state reads
// and drain/resume/down transitions via the scontrol CLI.
package slurm
