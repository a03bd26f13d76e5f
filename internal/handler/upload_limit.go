package handler

import "strconv"

// formatUploadLimit renders a byte limit for rejection messages, e.g. "50MB" or "512KB".
func formatUploadLimit(limit int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case limit <= 0:
		return "0MB"
	case limit >= mb:
		return strconv.FormatInt(limit/mb, 10) + "MB"
	case limit >= kb:
		return strconv.FormatInt(limit/kb, 10) + "KB"
	default:
		return strconv.FormatInt(limit, 10) + "B"
	}
}
