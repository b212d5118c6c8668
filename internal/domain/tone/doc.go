// Package tone contains the core domain types of sequential two-tone paging.
//
// It defines spectral estimates, hold windows, detector phases, the events a
// detector emits and the catalog of known pager tone pairs.
package tone
