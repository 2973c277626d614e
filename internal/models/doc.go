// Package models defines the workout-tracker domain types and the persistence interfaces used by the local cache.
//
// The package contains two categories of types:
//
// 1. API records: JSON shapes returned by the remote workout API
//   - [User] : The authenticated identity (id, username)
//   - [Workout] : A shooting goal with its target attempts, sessions and aggregates
//   - [Session] : One logged practice session (attempts, makes, success rate)
//   - [StatsOverview] : Aggregate statistics with progress over time
//
// 2. Persistent entities: rows stored in the local SQLite cache
//   - [CachedWorkout] : The last fetched copy of a workout, keyed by remote id
//   - [ExportRun] : One bulk export with its counts and outcome
//
// Persistent entities implement [Model]; [Repository] defines the CRUD surface for them.
package models
