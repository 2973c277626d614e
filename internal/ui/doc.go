// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The TUI moves through these views:
//  1. [LoadingView] : shown until the session manager resolves its initial state
//  2. [LoginView] : username and password form, shown whenever the session is unauthenticated
//  3. [WorkoutListView] : in-progress then completed workouts
//  4. [DetailView] : one workout with its sessions and a goal progress bar
//  5. [StatsView] : the stats overview
//  6. [ExportView] : live progress of a bulk export
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern. Session changes reach the
// model through the manager's subscription, so a refresh failure or a logout from anywhere returns to the
// login form. No workout data is fetched before the session resolves as authenticated.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, x, l, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
