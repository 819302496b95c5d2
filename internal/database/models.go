package database

// Source is a registered crawl origin.
type Source struct {
	ID          int64
	Name        string
	URL         string
	Adapter     string
	IsActive    bool
	LastCrawled *string
	CreatedAt   string
	UpdatedAt   string
}

// Article is a stored article row.
type Article struct {
	ID            int64
	SourceID      int64
	SourceName    string // joined from sources, empty when not selected
	URL           string
	Title         string
	Content       *string
	Author        *string
	PublishedDate *string
	Summary       *string
	ScrapedAt     string
	CreatedAt     string
	UpdatedAt     string
}

// NewArticle carries the fields of an article about to be inserted.
type NewArticle struct {
	URL           string
	Title         string
	Content       string
	Author        string
	PublishedDate string
	Summary       string
}
