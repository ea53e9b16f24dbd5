package model

import (
	"strings"
	"time"
)

// StatusOK is the only HTTP status that makes a crawled page eligible for extraction.
const StatusOK = 200

// CrawledPage represents one URL fetched for a school during a crawl.
// Pages are immutable once written; re-crawls append new rows.
type CrawledPage struct {
	ID          string    `json:"id"`
	Index       int       `json:"index"`
	SchoolID    int64     `json:"school_id"`
	SchoolName  string    `json:"school_name"`
	SchoolType  string    `json:"school_type"`
	URL         string    `json:"page_url"`
	Title       string    `json:"page_title,omitempty"`
	Description string    `json:"description,omitempty"`
	StatusCode  int       `json:"status_code"`
	Markdown    string    `json:"markdown,omitempty"`
	HTML        string    `json:"html,omitempty"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// Extractable reports whether the page was fetched successfully and has a body.
func (p CrawledPage) Extractable() bool {
	return p.StatusCode == StatusOK && strings.TrimSpace(p.Markdown) != ""
}

// School identifies a school to crawl.
type School struct {
	Index      int    `json:"index"`
	ID         int64  `json:"school_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	WebsiteURL string `json:"website_url"`
}

// EvalLabel marks a page as manually labeled for evaluation runs.
type EvalLabel struct {
	SchoolID  int64     `json:"school_id"`
	PageURL   string    `json:"page_url"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
