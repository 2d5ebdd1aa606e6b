package redis

import "fmt"

const ns = "openmic:v1"

func KeyEventBoard(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:board", ns, eventID)
}

func KeyEventLineup(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:lineup", ns, eventID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
