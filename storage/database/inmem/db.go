package inmemdb

import (
	"sync"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

type (
	DB struct {
		session *sessionTable
	}

	sessionTable struct {
		sync.RWMutex
		pkCount    int
		table      map[int]*session.Session
		attendance map[int][]attendance.Record
	}
)

func Open() *DB {
	return &DB{
		session: &sessionTable{
			table:      make(map[int]*session.Session),
			attendance: make(map[int][]attendance.Record),
		},
	}
}
