package model

// CachedEmbedding is one persisted embedding, keyed by model, task type and
// the sha256 of the embedded text.
type CachedEmbedding struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	Ctime       int64     `json:"ctime"`
}

func (c *CachedEmbedding) Dimension() int {
	return len(c.Vector)
}
