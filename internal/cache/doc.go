// Package cache owns the on-disk layout of downloaded game resources. Every
// entry is a plain file under the store root; a file only ever appears through
// a temp file in the same directory followed by a rename, so readers never
// observe a partial or unverified body. The filesystem is abstracted through
// afero so tests can run the whole store against an in-memory tree.
package cache
