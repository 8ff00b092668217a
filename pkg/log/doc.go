// Package log provides structured logging for felix using zerolog
package log
