package db

import (
	"time"
)

// LogRepo is the append-only audit log of outbound relay attempts. Entries
// are only ever patched to attach a late task id or completion fields.
type LogRepo struct {
	store *Store
}

func NewLogRepo(s *Store) *LogRepo {
	return &LogRepo{store: s}
}

// RequestLogEntry is a log row joined with the owning token's identity for
// display. The token fields are nil when the entry has no token reference
// or the token has since been deleted.
type RequestLogEntry struct {
	RequestLog    `gorm:"embedded"`
	TokenEmail    *string
	TokenUsername *string
}

// Create appends a log entry and returns its id.
func (r *LogRepo) Create(entry *RequestLog) (uint, error) {
	db, err := r.store.session("request_logs", "create")
	if err != nil {
		return 0, err
	}
	if err := db.Create(entry).Error; err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// UpdateCompletion patches the provided completion fields and stamps
// updated_at. A call with nothing provided issues no statement.
func (r *LogRepo) UpdateCompletion(id uint, responseBody *string, statusCode *int, duration *float64) error {
	updates := map[string]interface{}{}
	if responseBody != nil {
		updates["response_body"] = *responseBody
	}
	if statusCode != nil {
		updates["status_code"] = *statusCode
	}
	if duration != nil {
		updates["duration"] = *duration
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()

	db, err := r.store.session("request_logs", "update_completion")
	if err != nil {
		return err
	}
	return db.Model(&RequestLog{}).Where("id = ?", id).Updates(updates).Error
}

// AttachTaskID sets the task reference on an entry that was opened before
// the upstream task id was known.
func (r *LogRepo) AttachTaskID(id uint, taskID string) error {
	db, err := r.store.session("request_logs", "attach_task_id")
	if err != nil {
		return err
	}
	return db.Model(&RequestLog{}).Where("id = ?", id).Updates(map[string]interface{}{
		"task_id":    taskID,
		"updated_at": time.Now(),
	}).Error
}

// Recent returns up to limit entries, newest first, left-joined with the
// owning token's email and username.
func (r *LogRepo) Recent(limit int) ([]RequestLogEntry, error) {
	db, err := r.store.session("request_logs", "recent")
	if err != nil {
		return nil, err
	}
	var entries []RequestLogEntry
	err = db.Table("request_logs").
		Select("request_logs.*, tokens.email AS token_email, tokens.username AS token_username").
		Joins("LEFT JOIN tokens ON request_logs.token_id = tokens.id").
		Order("request_logs.created_at DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ClearAll empties the log table.
func (r *LogRepo) ClearAll() error {
	db, err := r.store.session("request_logs", "clear_all")
	if err != nil {
		return err
	}
	return db.Exec("DELETE FROM request_logs").Error
}
