package backend

import (
	"fmt"
	"strings"
)

func UserPath(userID string) string {
	return "Users/" + userID
}

func GalleryItemsPath(userID string) string {
	return "Gallery/" + userID + "/Items"
}

func GalleryItemPath(userID, itemID string) string {
	return GalleryItemsPath(userID) + "/" + itemID
}

func UserSessionsPath(userID string) string {
	return "Sessions/" + userID
}

func DaySessionsPath(userID, date string) string {
	return UserSessionsPath(userID) + "/" + date + "/sessions"
}

func SessionPath(userID, date, sessionID string) string {
	return DaySessionsPath(userID, date) + "/" + sessionID
}

// ParseSessionPath splits Sessions/{uid}/{date}/sessions/{sid}.
func ParseSessionPath(path string) (userID, date, sessionID string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 5 || parts[0] != "Sessions" || parts[3] != "sessions" {
		return "", "", "", fmt.Errorf("%w: not a session path %q", ErrInvalidPath, path)
	}
	return parts[1], parts[2], parts[4], nil
}
