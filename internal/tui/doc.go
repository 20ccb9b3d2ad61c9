// Package tui provides the interactive terminal mode of devteam.
//
// The user types a request, the team solves it while task transitions
// stream into a scrollable transcript, and the answer is printed below.
// Typing exit or quit leaves the program.
package tui
