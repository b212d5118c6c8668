// Package common holds helpers shared by several services.
//
// It provides the datagram client of the alert protocol and the default node
// identity of the local machine.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
