package embedding

import (
	"strings"

	"calm/internal/logging"
)

// =============================================================================
// TASK TYPE SELECTION
// =============================================================================

// ContentType represents the kind of content being embedded by the quality
// (semantic) engine. SelectTaskType maps it to a GenAI task_type name; no
// engine in this package calls SelectTaskType.
type ContentType string

const (
	ContentTypeQuery        ContentType = "query"         // a search_* query string
	ContentTypeGHAPNarrative ContentType = "ghap_narrative" // a rendered ghap axis projection
	ContentTypeFact          ContentType = "fact"           // a memory fact
	ContentTypeCommit        ContentType = "commit"         // a commit message/summary
	ContentTypeValue         ContentType = "value"          // a validated cluster value
)

// SelectTaskType picks the optimal GenAI task type for a content type.
func SelectTaskType(contentType ContentType, isQuery bool) string {
	logging.EmbeddingDebug("SelectTaskType: content_type=%s is_query=%v", contentType, isQuery)

	var taskType string
	switch contentType {
	case ContentTypeQuery:
		taskType = "RETRIEVAL_QUERY"
	case ContentTypeFact, ContentTypeCommit, ContentTypeGHAPNarrative:
		if isQuery {
			taskType = "RETRIEVAL_QUERY"
		} else {
			taskType = "RETRIEVAL_DOCUMENT"
		}
	case ContentTypeValue:
		taskType = "CLUSTERING"
	default:
		taskType = "SEMANTIC_SIMILARITY"
		logging.EmbeddingDebug("SelectTaskType: unknown content_type=%s, defaulting to SEMANTIC_SIMILARITY", contentType)
	}

	logging.EmbeddingDebug("SelectTaskType: selected task_type=%s", taskType)
	return taskType
}

// DetectContentType returns metadata's "content_type" value, lowercased,
// when it is a string, and ContentTypeFact otherwise. It makes no other
// inference from the metadata.
func DetectContentType(metadata map[string]interface{}) ContentType {
	if meta, ok := metadata["content_type"].(string); ok {
		return ContentType(strings.ToLower(meta))
	}
	return ContentTypeFact
}
