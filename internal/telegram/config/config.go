package config

type Config struct {
	// Token of the bot. Empty disables the chat transport.
	Token string
	// AdminID is the chat user id of the administrator.
	AdminID int64
	// AdminChatID receives new request announcements. Zero falls back to AdminID.
	AdminChatID int64
}

func (c Config) AnnounceChat() int64 {
	if c.AdminChatID != 0 {
		return c.AdminChatID
	}
	return c.AdminID
}
