package model

type IngestReport struct {
	FileName       string `json:"file_name"`
	SubjectID      string `json:"subject_id"`
	FilesProcessed int    `json:"files_processed"`
	PagesProcessed int    `json:"pages_processed"`
	ChunksCreated  int    `json:"chunks_created"`
	FailedChunks   int    `json:"failed_chunks"`
}
