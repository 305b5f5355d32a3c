// Package persistence provides atomic whole-file JSON snapshots.
//
// A File holds one value of type T on disk. Update implements the
// read-modify-write discipline used for accessory state: load the current
// snapshot, mutate it in memory and, only if its content hash changed, write
// it back through a temp file, fsync and rename so readers never observe a
// torn file.
package persistence
