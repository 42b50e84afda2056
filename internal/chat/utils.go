package chat

import (
	"fmt"
	"net"
	"time"

	"github.com/wtask/chatrelay/internal/chat/broker"
)

// connectedNotice - server chat line about joined client.
func connectedNotice(username string) broker.ChatMessage {
	return systemMessage(username + " has connected.")
}

// disconnectedNotice - server chat line about left client.
func disconnectedNotice(username string) broker.ChatMessage {
	return systemMessage(username + " has disconnected.")
}

func systemMessage(text string) broker.ChatMessage {
	return broker.ChatMessage{
		Text:     text,
		AuthorID: broker.SystemAuthor,
		At:       time.Now().UTC(),
	}
}

// formatAddress - formats specified network address for logging purposes.
func formatAddress(a net.Addr) string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", a.Network(), a.String())
}

// remoteAddress - remote address of connection, empty for nil.
func remoteAddress(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
