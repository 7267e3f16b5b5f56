// Package snapshot writes and reads table snapshot files.
//
// A snapshot captures one table's rows and version so that it can be
// exported from one backend and imported into another. Files live in one
// directory per table:
//
//	<dir>/<table>/snapshot-<timestamp>-<sequence>.snap
//	[magic:8 "TSYNCSNP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON rows, or encrypted bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// Data may be encrypted with a configured cipher or with a key derived from
// a passphrase; in the latter case the salt is stored in the header. The
// table name is bound to the ciphertext as additional data.
//
// Loading the latest snapshot of a table skips corrupted files and falls
// back to older ones.
package snapshot
