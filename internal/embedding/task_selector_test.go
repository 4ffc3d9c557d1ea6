package embedding

import "testing"

func TestSelectTaskType(t *testing.T) {
	if got := SelectTaskType(ContentTypeQuery, true); got != "RETRIEVAL_QUERY" {
		t.Fatalf("SelectTaskType(query)=%q, want RETRIEVAL_QUERY", got)
	}
	if got := SelectTaskType(ContentTypeFact, false); got != "RETRIEVAL_DOCUMENT" {
		t.Fatalf("SelectTaskType(fact, doc)=%q, want RETRIEVAL_DOCUMENT", got)
	}
	if got := SelectTaskType(ContentTypeFact, true); got != "RETRIEVAL_QUERY" {
		t.Fatalf("SelectTaskType(fact, query)=%q, want RETRIEVAL_QUERY", got)
	}
	if got := SelectTaskType(ContentTypeValue, false); got != "CLUSTERING" {
		t.Fatalf("SelectTaskType(value)=%q, want CLUSTERING", got)
	}
	if got := SelectTaskType(ContentType("unknown"), false); got != "SEMANTIC_SIMILARITY" {
		t.Fatalf("SelectTaskType(unknown)=%q, want SEMANTIC_SIMILARITY", got)
	}
}

func TestDetectContentType_MetadataWins(t *testing.T) {
	meta := map[string]interface{}{"content_type": "commit"}
	if got := DetectContentType(meta); got != ContentTypeCommit {
		t.Fatalf("DetectContentType(metadata content_type)=%q, want %q", got, ContentTypeCommit)
	}
}

func TestDetectContentType_DefaultsToFact(t *testing.T) {
	if got := DetectContentType(map[string]interface{}{}); got != ContentTypeFact {
		t.Fatalf("DetectContentType(empty metadata)=%q, want %q", got, ContentTypeFact)
	}
}
