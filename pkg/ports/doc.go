/*
Package ports defines the driven ports (interfaces) of the engine.

These interfaces decouple conversation hosting from storage and coordination
backends, so the same session manager runs over memory, files, Redis or SQLite.

# Key Interfaces

  - SnapshotStore: persists and loads machine snapshots per session.
  - AuditStore: appends and lists committed TurnRecords per session.
  - DistributedLocker: provides distributed locking for concurrent session access.
*/
package ports
