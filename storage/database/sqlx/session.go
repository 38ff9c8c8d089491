package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

const sessionColumns = `"id", "title", "meeting_link", "scheduled_at", "scheduled_duration_minutes",
	"actual_duration_minutes", "formal_end_minutes", "cliff_detection", "created_at", "updated_at"`

var candidatesOrdering = []core.DBOrdering{
	{Field: `"scheduled_at"`},
	{Field: `"id"`},
}

type sessionRow struct {
	ID                       int                `db:"id"`
	Title                    string             `db:"title"`
	MeetingLink              null.String        `db:"meeting_link"`
	ScheduledAt              time.Time          `db:"scheduled_at"`
	ScheduledDurationMinutes int                `db:"scheduled_duration_minutes"`
	ActualDurationMinutes    null.Int           `db:"actual_duration_minutes"`
	FormalEndMinutes         null.Int           `db:"formal_end_minutes"`
	CliffDetection           types.NullJSONText `db:"cliff_detection"`
	CreatedAt                time.Time          `db:"created_at"`
	UpdatedAt                time.Time          `db:"updated_at"`
}

type attendanceRow struct {
	SessionID int `db:"session_id"`
	attendance.Record
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo sessionRepository) toRow(sess session.Session) (sessionRow, error) {
	det, err := json.Marshal(sess.Detection)
	if err != nil {
		return sessionRow{}, errors.Wrap(err, "encoding cliff detection")
	}
	return sessionRow{
		ID:                       sess.ID,
		Title:                    sess.Title,
		MeetingLink:              null.NewString(sess.MeetingLink, sess.MeetingLink != ""),
		ScheduledAt:              sess.ScheduledAt.UTC(),
		ScheduledDurationMinutes: sess.ScheduledDurationMinutes,
		ActualDurationMinutes:    null.IntFromPtr(sess.ActualDurationMinutes),
		FormalEndMinutes:         null.IntFromPtr(sess.FormalEndMinutes),
		CliffDetection:           types.NullJSONText{JSONText: det, Valid: true},
		CreatedAt:                sess.CreatedAt.UTC(),
		UpdatedAt:                sess.UpdatedAt.UTC(),
	}, nil
}

func (repo sessionRepository) fromRow(row sessionRow) (session.Session, error) {
	sess := session.Session{
		ID:                       row.ID,
		Title:                    row.Title,
		MeetingLink:              row.MeetingLink.String,
		ScheduledAt:              row.ScheduledAt.UTC(),
		ScheduledDurationMinutes: row.ScheduledDurationMinutes,
		ActualDurationMinutes:    row.ActualDurationMinutes.Ptr(),
		FormalEndMinutes:         row.FormalEndMinutes.Ptr(),
		Detection:                session.Detection{State: session.StateUndetected},
		CreatedAt:                row.CreatedAt.UTC(),
		UpdatedAt:                row.UpdatedAt.UTC(),
	}
	if row.CliffDetection.Valid && len(row.CliffDetection.JSONText) > 0 {
		if err := row.CliffDetection.Unmarshal(&sess.Detection); err != nil {
			return session.Session{}, errors.Wrapf(err, "decoding cliff detection of session %d", row.ID)
		}
	}
	return sess, nil
}

// trapNoRowsErr maps psql "no rows" err to session.ErrNotFound
func (repo sessionRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return session.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	row, err := repo.toRow(sess)
	if err != nil {
		return session.Session{}, err
	}
	q := `INSERT INTO "session" ("title", "meeting_link", "scheduled_at", "scheduled_duration_minutes",
		"actual_duration_minutes", "formal_end_minutes", "cliff_detection", "created_at", "updated_at")
		VALUES (:title, :meeting_link, :scheduled_at, :scheduled_duration_minutes,
		:actual_duration_minutes, :formal_end_minutes, :cliff_detection, :created_at, :updated_at)
		RETURNING "id"`
	q, args, err := sqlx.Named(q, row)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "binding session")
	}
	if err = repo.db.GetContext(ctx, &sess.ID, repo.db.Rebind(q), args...); err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo sessionRepository) GetSession(ctx context.Context, id int) (session.Session, error) {
	var row sessionRow
	q := `SELECT ` + sessionColumns + ` FROM "session" WHERE "id" = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return session.Session{}, repo.trapNoRowsErr(err, "finding session by ID")
	}
	return repo.fromRow(row)
}

func (repo sessionRepository) QueryDetectionCandidates(ctx context.Context) ([]session.Session, error) {
	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM "session"
		WHERE COALESCE("meeting_link", '') <> ''
		AND COALESCE("cliff_detection"->>'state', 'undetected') NOT IN ('applied', 'dismissed')
		AND COALESCE(("cliff_detection"->>'dismissed')::boolean, false) = false
		ORDER BY ` + core.OrderBy(candidatesOrdering...)
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying detection candidates")
	}

	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (repo sessionRepository) UpdateDetection(ctx context.Context, id int, det session.Detection) error {
	blob, err := json.Marshal(det)
	if err != nil {
		return errors.Wrap(err, "encoding cliff detection")
	}
	q := `UPDATE "session" SET "cliff_detection" = $1, "updated_at" = $2 WHERE "id" = $3`
	res, err := repo.db.ExecContext(ctx, q, types.JSONText(blob), time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating cliff detection")
	}
	return repo.checkUpdated(res)
}

func (repo sessionRepository) UpdateFormalEnd(ctx context.Context, id int, formalEndMinutes *int, det session.Detection) error {
	blob, err := json.Marshal(det)
	if err != nil {
		return errors.Wrap(err, "encoding cliff detection")
	}
	q := `UPDATE "session" SET "formal_end_minutes" = $1, "cliff_detection" = $2, "updated_at" = $3 WHERE "id" = $4`
	res, err := repo.db.ExecContext(ctx, q, null.IntFromPtr(formalEndMinutes), types.JSONText(blob), time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating formal end")
	}
	return repo.checkUpdated(res)
}

func (repo sessionRepository) checkUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting updated sessions")
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ReplaceAttendance swaps the stored attendance of a session in a single transaction.
func (repo sessionRepository) ReplaceAttendance(ctx context.Context, id int, records []attendance.Record) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM "attendance_record" WHERE "session_id" = $1`, id); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if len(records) > 0 {
		rows := make([]attendanceRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, attendanceRow{SessionID: id, Record: rec})
		}
		q := `INSERT INTO "attendance_record"
			("session_id", "identity_key", "coverage_seconds", "window_seconds", "attendance_percentage")
			VALUES (:session_id, :identity_key, :coverage_seconds, :window_seconds, :attendance_percentage)`
		if _, err = tx.NamedExecContext(ctx, q, rows); err != nil {
			return errors.Wrap(err, "inserting attendance")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing attendance")
	}
	return nil
}

func (repo sessionRepository) QueryAttendance(ctx context.Context, id int) ([]attendance.Record, error) {
	records := make([]attendance.Record, 0)
	q := `SELECT "identity_key", "coverage_seconds", "window_seconds", "attendance_percentage"
		FROM "attendance_record" WHERE "session_id" = $1 ORDER BY "identity_key"`
	if err := repo.db.SelectContext(ctx, &records, q, id); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return records, nil
}
