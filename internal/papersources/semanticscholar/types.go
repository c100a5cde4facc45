// Package semanticscholar provides a citation lookup against the Semantic
// Scholar Graph API.
//
// API Documentation: https://api.semanticscholar.org/api-docs/graph
package semanticscholar

// PaperCitations is the response of /paper/DOI:{doi}?fields=citationCount.
type PaperCitations struct {
	PaperID       string `json:"paperId"`
	CitationCount *int   `json:"citationCount"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
