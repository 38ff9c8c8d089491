package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.session}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// clone detaches a stored session from the table's pointers.
func clone(sess session.Session) session.Session {
	sess.ActualDurationMinutes = copyInt(sess.ActualDurationMinutes)
	sess.FormalEndMinutes = copyInt(sess.FormalEndMinutes)
	sess.Detection.AppliedFormalEndMinutes = copyInt(sess.Detection.AppliedFormalEndMinutes)
	return sess
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	sess.ID = repo.db.pkCount
	if sess.Detection.State == "" {
		sess.Detection.State = session.StateUndetected
	}
	stored := clone(sess)
	repo.db.table[sess.ID] = &stored
	return sess, nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id int) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return clone(*sess), nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) QueryDetectionCandidates(_ context.Context) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]session.Session, 0, len(repo.db.table))
	for _, sess := range repo.db.table {
		if sess.MeetingLink == "" || !sess.Detection.EligibleForBatch() {
			continue
		}
		sessions = append(sessions, clone(*sess))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].ScheduledAt.Equal(sessions[j].ScheduledAt) {
			return sessions[i].ScheduledAt.After(sessions[j].ScheduledAt)
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

func (repo *sessionRepository) UpdateDetection(_ context.Context, id int, det session.Detection) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sess, ok := repo.db.table[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.Detection = det
	sess.UpdatedAt = time.Now().UTC()
	*sess = clone(*sess)
	return nil
}

func (repo *sessionRepository) UpdateFormalEnd(_ context.Context, id int, formalEndMinutes *int, det session.Detection) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sess, ok := repo.db.table[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.FormalEndMinutes = formalEndMinutes
	sess.Detection = det
	sess.UpdatedAt = time.Now().UTC()
	*sess = clone(*sess)
	return nil
}

func (repo *sessionRepository) ReplaceAttendance(_ context.Context, id int, records []attendance.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return session.ErrNotFound
	}
	stored := make([]attendance.Record, len(records))
	copy(stored, records)
	repo.db.attendance[id] = stored
	return nil
}

func (repo *sessionRepository) QueryAttendance(_ context.Context, id int) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if _, ok := repo.db.table[id]; !ok {
		return nil, session.ErrNotFound
	}
	records := make([]attendance.Record, len(repo.db.attendance[id]))
	copy(records, repo.db.attendance[id])
	sort.Slice(records, func(i, j int) bool { return records[i].IdentityKey < records[j].IdentityKey })
	return records, nil
}
