package admin

import "strconv"

type Directory interface {
	IsAdministrator(actorID string) bool
}

type directory struct {
	adminIDs map[string]bool
}

// NewDirectory accepts the administrator under any of its ids: the chat user id and the
// HTTP login name. Empty ids are ignored.
func NewDirectory(ids ...string) Directory {
	d := directory{adminIDs: map[string]bool{}}
	for _, id := range ids {
		if id != "" {
			d.adminIDs[id] = true
		}
	}
	return d
}

func (d directory) IsAdministrator(actorID string) bool {
	return actorID != "" && d.adminIDs[actorID]
}

// ChatActor is the actor id of a chat user.
func ChatActor(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}
