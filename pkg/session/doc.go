/*
Package session hosts many conversations over one agent.

A Manager loads a session's snapshot, resumes a machine from it, runs a turn and
saves the result, all under a per-session lock. Locks are local mutexes by
default; a ports.DistributedLocker serializes turns across replicas as well.
Committed TurnRecords can be mirrored into a ports.AuditStore.
*/
package session
