package model

import "time"

// ReportStatus is the review state of a report.
type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusApproved ReportStatus = "approved"
	StatusRejected ReportStatus = "rejected"
)

// ReportStatuses lists every status in display order.
var ReportStatuses = []ReportStatus{StatusPending, StatusApproved, StatusRejected}

func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Quality is the household's segregation quality rating. Empty means the
// reporter did not rate it.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Qualities lists every rating, best first.
var Qualities = []Quality{QualityExcellent, QualityGood, QualityFair, QualityPoor}

// Report is a row in the `reports` table. UserID is always the verified
// identity that created it.
type Report struct {
	ID                 uint64       `json:"id"`
	UserID             uint64       `json:"userId"`
	Location           string       `json:"location"`
	Description        string       `json:"description"`
	SegregationQuality Quality      `json:"segregationQuality"`
	PhotoURL           string       `json:"photoUrl"`
	Status             ReportStatus `json:"status"`
	ReviewedBy         *uint64      `json:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time   `json:"reviewedAt,omitempty"`
	ReviewNote         string       `json:"reviewNote,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// ReportFilter narrows a report listing. Zero values mean "any".
type ReportFilter struct {
	UserID uint64
	Status ReportStatus
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Offset is the row offset of the page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// Stats are aggregate counts for dashboards.
type Stats struct {
	ReportsByStatus  map[ReportStatus]int `json:"reportsByStatus"`
	ReportsByQuality map[Quality]int      `json:"reportsByQuality"`
	TotalReports     int                  `json:"totalReports"`
}
