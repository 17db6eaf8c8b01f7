// Package aggregation derives grade and attendance view models from snapshots
// of school records.
//
// Every function in this package is pure: it receives fully fetched
// collections, performs no I/O and keeps no state between calls. Missing or
// malformed data never causes an error; it degrades to null averages, zero
// counts and pending statuses.
package aggregation
