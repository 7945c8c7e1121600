package models

import "time"

// FileSetInfo represents metadata about an uploaded set of map files.
type FileSetInfo struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`   // base file name, e.g. "poknowledge.txt"
	Files      []string  `json:"files" yaml:"files"` // stored file names, base first
	Size       int64     `json:"size" yaml:"size"`
	UploadedAt time.Time `json:"uploadedAt" yaml:"uploaded_at"`
}
