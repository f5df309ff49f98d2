// Package chat contains the Twitch chat logging bot.
//
// A Bot owns one go-twitch-irc connection and does two things with it:
//   - maps chat events to log rows: PRIVMSG becomes a message row, CLEARCHAT
//     with a target becomes a timeout or ban row, and CLEARMSG flags the
//     matching rows as deleted. Messages from ignored bots are skipped and a
//     full chat wipe writes nothing.
//   - answers admin commands typed in chat:
//     "<prefix><mention> join a,b", "<prefix><mention> leave a,b" and
//     "<prefix><mention> ping". join registers unknown channels and creates
//     their log store, leave only marks the channel unavailable so its history
//     is kept.
//
// Log inserts run on the IRC reader goroutine to keep row order. Commands and
// deletions need Helix lookups and run on their own goroutines.
package chat
