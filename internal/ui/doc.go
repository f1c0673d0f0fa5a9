// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for version comparison:
//  1. [ProjectListView] : Browse and select a configured project
//  2. [OldTagView] : Pick the older version tag
//  3. [NewTagView] : Pick the newer version tag
//  4. [CompareView] : Monitor comparison progress with a spinner and phase updates
//  5. [ResultView] : Display the rendered comparison report
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the ComparisonService, providing non-blocking
// status reporting during comparisons; the final outcome arrives on its own buffered channel.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
