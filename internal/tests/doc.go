// Package tests holds end-to-end tests that drive the storage engine and
// the table services together.
package tests
