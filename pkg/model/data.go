package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type DataID string

// NewDataID generates a new unique DataID
func NewDataID() DataID {
	return DataID(uuid.New().String())
}

// DataItem is a piece of project content that can be searched and analyzed
type DataItem struct {
	ID          DataID             `firestore:"id" json:"id"`
	ProjectID   string             `firestore:"project_id" json:"project_id"`
	Filename    string             `firestore:"filename" json:"filename"`
	Type        string             `firestore:"type" json:"type"` // MIME type
	Description string             `firestore:"description" json:"description"`
	Tags        []string           `firestore:"tags" json:"tags"`
	Embedding   firestore.Vector32 `firestore:"embedding" json:"-"`
	StoragePath string             `firestore:"storage_path" json:"storage_path"`
	Analysis    string             `firestore:"analysis,omitempty" json:"analysis,omitempty"`
	CreatedAt   time.Time          `firestore:"created_at" json:"created_at"`
}

// ScoredDataItem pairs a data item with its similarity score
type ScoredDataItem struct {
	Item  *DataItem
	Score float64
}

// SearchHit is a formatted search result returned by the search agent
type SearchHit struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	Type        string   `json:"type"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// SearchResult is the result of the search agent
type SearchResult struct {
	Found   int         `json:"found"`
	Results []SearchHit `json:"results"`
	Query   string      `json:"query"`
	// Answer is set only for web searches
	Answer string `json:"answer,omitempty"`
}

// CompressionStats describes what the image utility did to a content blob
type CompressionStats struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	IsImage        bool    `json:"is_image"`
}

// AnalysisResult is the result of analyzing a single data item
type AnalysisResult struct {
	DataID   DataID           `json:"data_id"`
	Filename string           `json:"filename"`
	Analysis string           `json:"analysis"`
	Metadata CompressionStats `json:"metadata"`
}

// ComparedItem is one side of a comparison
type ComparedItem struct {
	DataID   DataID   `json:"data_id"`
	Filename string   `json:"filename"`
	Analysis string   `json:"analysis"`
	Tags     []string `json:"tags"`
}

// ComparisonResult is the result of comparing two or more data items by tags
type ComparisonResult struct {
	Items      []ComparedItem      `json:"items"`
	CommonTags []string            `json:"common_tags"`
	UniqueTags map[DataID][]string `json:"unique_tags"`
}

// WebCitation is a source reference returned by the web search service
type WebCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// WebSearchResult is what the web search service returns
type WebSearchResult struct {
	Answer    string        `json:"answer"`
	Citations []WebCitation `json:"citations"`
}
