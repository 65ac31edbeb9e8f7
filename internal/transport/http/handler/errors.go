package handler

const (
	errInternalServer = "Internal server error"
	errJobNotFound    = "Import job not found"
	errFileMissing    = "Upload a single file in the \"file\" field"
)
