package auth

import "fmt"

// AdminChecker decides whether an update comes from the moderation chat.
// Membership of that chat is what makes someone an administrator.
type AdminChecker struct {
	adminChatID int64
}

// NewAdminChecker requires a non-zero admin chat ID.
func NewAdminChecker(adminChatID int64) (*AdminChecker, error) {
	if adminChatID == 0 {
		return nil, fmt.Errorf("admin chat ID cannot be zero")
	}
	return &AdminChecker{adminChatID: adminChatID}, nil
}

// IsAdminChat reports whether chatID is the moderation chat.
func (ac *AdminChecker) IsAdminChat(chatID int64) bool {
	return chatID == ac.adminChatID
}

// AdminChatID returns the moderation chat ID.
func (ac *AdminChecker) AdminChatID() int64 {
	return ac.adminChatID
}
