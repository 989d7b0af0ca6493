// Package state stores per-user conversation sessions for the bot.
// A user without a stored session is in StepIdle.
package state
