// Package scheduler runs the overdue sweep on a fixed interval.
package scheduler
