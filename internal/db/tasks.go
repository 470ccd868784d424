package db

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskRepo manages asynchronous generation task records.
type TaskRepo struct {
	store *Store
}

func NewTaskRepo(s *Store) *TaskRepo {
	return &TaskRepo{store: s}
}

// Create inserts the task with its caller-supplied status and progress and
// returns the generated id. A duplicate task_id surfaces as the database's
// uniqueness error.
func (r *TaskRepo) Create(task *Task) (uint, error) {
	db, err := r.store.session("tasks", "create")
	if err != nil {
		return 0, err
	}
	if err := db.Create(task).Error; err != nil {
		return 0, err
	}
	return task.ID, nil
}

// Update replaces the task's status, progress, result and error fields.
// CompletedAt is stamped now if and only if the status is terminal
// (completed or failed); any other status leaves it NULL.
func (r *TaskRepo) Update(taskID, status string, progress float64, resultURLs []string, errorMessage *string) error {
	db, err := r.store.session("tasks", "update")
	if err != nil {
		return err
	}
	var completedAt *time.Time
	if status == TaskStatusCompleted || status == TaskStatusFailed {
		now := time.Now()
		completedAt = &now
	}
	// nil result stays SQL NULL rather than the JSON literal "null".
	var urls interface{}
	if resultURLs != nil {
		urls = datatypes.NewJSONSlice(resultURLs)
	}
	return db.Model(&Task{}).Where("task_id = ?", taskID).Updates(map[string]interface{}{
		"status":        status,
		"progress":      progress,
		"result_urls":   urls,
		"error_message": errorMessage,
		"completed_at":  completedAt,
	}).Error
}

// GetByTaskID returns the task for the caller-assigned id, or (nil, nil)
// when absent.
func (r *TaskRepo) GetByTaskID(taskID string) (*Task, error) {
	db, err := r.store.session("tasks", "get")
	if err != nil {
		return nil, err
	}
	var task Task
	if err := db.Where("task_id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}
