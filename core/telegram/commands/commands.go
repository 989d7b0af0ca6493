// Package commands describes slash commands exposed by the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly and Hidden commands stay out of the Telegram menu.
	AdminOnly bool
	Hidden    bool
	// Aliases are extra "/name" endpoints bound to the same handler.
	Aliases []string
}
