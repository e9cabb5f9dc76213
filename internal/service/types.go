// Package service exposes the files a map session can ingest.
package service

// SourceFile is an ingestible file in the sources directory.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"parcels.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	Bytes    int64  `json:"bytes" doc:"File size in bytes" example:"1258291"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}
