package models

import "time"

// Chunk is a bounded segment of an uploaded document plus its provenance.
type Chunk struct {
	Text     string        `msgpack:"text" json:"text"`
	Metadata ChunkMetadata `msgpack:"metadata" json:"metadata"`
}

type ChunkMetadata struct {
	OwnerID        int64     `msgpack:"owner_id" json:"owner_id"`
	SourceFileName string    `msgpack:"source_file_name" json:"source_file_name"`
	Sequence       int       `msgpack:"chunk_sequence_number" json:"chunk_sequence_number"`
	SourcePath     string    `msgpack:"source_path" json:"source_path"`
	CreatedAt      time.Time `msgpack:"created_at" json:"created_at"`
	// Page is the 1-based page, sheet, slide or row the chunk came from, 0 if the format has none.
	Page int `msgpack:"page,omitempty" json:"page,omitempty"`
	// Offset is the byte offset of Text inside its loader record, -1 if unknown.
	Offset int `msgpack:"offset" json:"offset"`
}

// AnswerResult is the sanitized answer together with the file it is attributed to.
type AnswerResult struct {
	Text           string `json:"text"`
	AttributedFile string `json:"attributed_file,omitempty"`
}
