package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/segregate/internal/database"
	"github.com/iliyamo/segregate/internal/model"
)

const reportColumns = "id,user_id,location,description,segregation_quality,photo_url,status,reviewed_by,reviewed_at,review_note,created_at,updated_at"

type ReportRepo struct{ DB *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{DB: db} }

// Create inserts a pending report owned by rep.UserID.
func (r *ReportRepo) Create(ctx context.Context, rep model.Report) (model.Report, error) {
	now := database.Now()
	rep.Status = model.StatusPending
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO reports (user_id,location,description,segregation_quality,photo_url,status,review_note,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,'',?,?)`,
		rep.UserID, rep.Location, rep.Description, string(rep.SegregationQuality), rep.PhotoURL,
		string(rep.Status), now, now)
	if err != nil {
		return model.Report{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Report{}, err
	}
	rep.ID = uint64(id)
	rep.ReviewedBy, rep.ReviewedAt, rep.ReviewNote = nil, nil, ""
	rep.CreatedAt, rep.UpdatedAt = now, now
	return rep, nil
}

func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (model.Report, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM reports WHERE id=? LIMIT 1", id)
	return scanReport(row)
}

// List returns one page of reports, newest first.
func (r *ReportRepo) List(ctx context.Context, f model.ReportFilter, page model.Page) ([]model.Report, int, error) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, string(f.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+reportColumns+" FROM reports"+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rep)
	}
	return out, total, rows.Err()
}

// ReportUpdate carries the editable fields of a report. Nil leaves a field
// unchanged.
type ReportUpdate struct {
	Location           *string
	Description        *string
	SegregationQuality *model.Quality
	PhotoURL           *string
}

func (u ReportUpdate) Empty() bool {
	return u.Location == nil && u.Description == nil && u.SegregationQuality == nil && u.PhotoURL == nil
}

// Update applies the non-nil fields of upd.
func (r *ReportRepo) Update(ctx context.Context, id uint64, upd ReportUpdate) error {
	sets := []string{"updated_at=?"}
	args := []any{database.Now()}
	if upd.Location != nil {
		sets = append(sets, "location=?")
		args = append(args, *upd.Location)
	}
	if upd.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, *upd.Description)
	}
	if upd.SegregationQuality != nil {
		sets = append(sets, "segregation_quality=?")
		args = append(args, string(*upd.SegregationQuality))
	}
	if upd.PhotoURL != nil {
		sets = append(sets, "photo_url=?")
		args = append(args, *upd.PhotoURL)
	}
	args = append(args, id)
	return execOne(ctx, r.DB, "UPDATE reports SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
}

// Review records a verification decision.
func (r *ReportRepo) Review(ctx context.Context, id uint64, status model.ReportStatus, reviewer uint64, note string) error {
	now := database.Now()
	return execOne(ctx, r.DB,
		"UPDATE reports SET status=?, reviewed_by=?, reviewed_at=?, review_note=?, updated_at=? WHERE id=?",
		string(status), reviewer, now, note, now, id)
}

func (r *ReportRepo) Delete(ctx context.Context, id uint64) error {
	return execOne(ctx, r.DB, "DELETE FROM reports WHERE id=?", id)
}

// Stats counts reports by status and by quality.
func (r *ReportRepo) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{
		ReportsByStatus:  make(map[model.ReportStatus]int, len(model.ReportStatuses)),
		ReportsByQuality: make(map[model.Quality]int, len(model.Qualities)),
	}
	for _, s := range model.ReportStatuses {
		st.ReportsByStatus[s] = 0
	}
	for _, q := range model.Qualities {
		st.ReportsByQuality[q] = 0
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, segregation_quality, COUNT(*) FROM reports GROUP BY status, segregation_quality")
	if err != nil {
		return model.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, quality string
		var n int
		if err := rows.Scan(&status, &quality, &n); err != nil {
			return model.Stats{}, err
		}
		st.ReportsByStatus[model.ReportStatus(status)] += n
		if quality != "" {
			st.ReportsByQuality[model.Quality(quality)] += n
		}
		st.TotalReports += n
	}
	return st, rows.Err()
}

func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row rowScanner) (model.Report, error) {
	var (
		rep              model.Report
		quality, status  string
		reviewedBy       sql.NullInt64
		reviewedAt       database.Time
		created, updated database.Time
	)
	err := row.Scan(&rep.ID, &rep.UserID, &rep.Location, &rep.Description, &quality, &rep.PhotoURL,
		&status, &reviewedBy, &reviewedAt, &rep.ReviewNote, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, ErrNotFound
	}
	if err != nil {
		return model.Report{}, err
	}
	rep.SegregationQuality = model.Quality(quality)
	rep.Status = model.ReportStatus(status)
	if reviewedBy.Valid {
		v := uint64(reviewedBy.Int64)
		rep.ReviewedBy = &v
	}
	rep.ReviewedAt = reviewedAt.Ptr()
	rep.CreatedAt, rep.UpdatedAt = created.Time, updated.Time
	return rep, nil
}

