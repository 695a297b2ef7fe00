package reservation

import (
	"sort"

	"github.com/robertarktes/hotel-room-holds/internal/domain"
)

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Notice is a user-visible message. Failures surface here instead of
// propagating into the host.
type Notice struct {
	Level   Level
	Message string
}

// Notices streams every notice. Slow readers miss notices, never block the
// controller; Snapshot always carries the latest one.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

func (c *Controller) noticeLocked(level Level, msg string) {
	n := Notice{Level: level, Message: msg}
	c.notice = n
	select {
	case c.notices <- n:
	default:
	}
}

func sortRooms(rooms []domain.Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
}
