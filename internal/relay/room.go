// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

// Room name prefixes. A room is a named group of connections used for
// targeted broadcast; names are built only through the constructors below
// so every room carries a known kind prefix.
const (
	roomPrefixConversation  = "conversation:"
	roomPrefixFeed          = "feed:"
	roomPrefixNotifications = "notifications:"
	roomPrefixAnalytics     = "analytics:"
)

// DefaultFeed is the feed joined when no feed type is given.
const DefaultFeed = "global"

// ConversationRoom names the room for a chat conversation.
func ConversationRoom(conversationID string) string {
	return roomPrefixConversation + conversationID
}

// FeedRoom names the room for a social feed. An empty feed type means the
// global feed.
func FeedRoom(feedType string) string {
	if feedType == "" {
		feedType = DefaultFeed
	}
	return roomPrefixFeed + feedType
}

// NotificationsRoom names a user's personal notification channel.
func NotificationsRoom(userID string) string {
	return roomPrefixNotifications + userID
}

// AnalyticsRoom names the room for a live dashboard subscription.
func AnalyticsRoom(dashboardID string) string {
	return roomPrefixAnalytics + dashboardID
}
