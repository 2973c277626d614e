// Package tasks runs long workout operations with real-time progress reporting.
//
// # Operations
//
// [ExportEngine] wraps a [services.WorkoutAPI]:
//
//  1. [ExportEngine.Collect] : fetch the in-progress and completed lists plus the stats overview
//     - Lists and stats are fetched concurrently
//     - Returns a [Collection] for bulk exports or backups
//
//  2. [ExportEngine.BulkExport] : export many workouts to disk
//     - A producer fetches each workout detail behind a rate limiter
//     - A bounded worker pool renders and writes one file per workout
//     - Partial failures are recorded, not fatal
//     - A manifest (export_manifest.json) summarizes the run
//
// # Progress Reporting
//
// Every operation accepts an optional progress channel. Updates are [ProgressUpdate] values sent with
// select/default so a slow or absent reader never stalls the export.
package tasks
