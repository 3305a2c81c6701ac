package postgres

import (
	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/repositories"
)

// SharedHelpers contains common query building operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyExamFilters applies common filters to exam queries
func (h *SharedHelpers) ApplyExamFilters(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.StudentClass != nil {
		query = query.Where("student_class = ?", *filters.StudentClass)
	}
	return query
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.IsCompleted != nil {
		query = query.Where("is_completed = ?", *filters.IsCompleted)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}
	if filters.DateFrom != nil {
		query = query.Where("start_time >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("start_time <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"id":         true,
		"title":      true,
		"start_time": true,
		"end_time":   true,
		"score":      true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
