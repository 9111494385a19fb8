// Package mock provides test doubles for the ai package interfaces,
// enabling unit tests without external embedding services.
package mock
