// Package sap prepares the handoff payload for the downstream ERP importer:
// the validated invoice, attachment metadata and the processing status.
package sap

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// Attachment describes the source file that backs the invoice record.
type Attachment struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileHash string `json:"file_hash"`
}

// Payload is the unit the ERP importer consumes.
type Payload struct {
	Invoice    *invoice.Document `json:"invoice"`
	Attachment Attachment        `json:"attachment"`
	Status     string            `json:"status"`
}

// HashBytes returns the hex SHA-256 of the file content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prepare assembles the payload for one processed file.
func Prepare(doc *invoice.Document, fileName string, data []byte, status constants.DocStatus) Payload {
	return Payload{
		Invoice: doc,
		Attachment: Attachment{
			FileName: filepath.Base(fileName),
			FileType: strings.TrimPrefix(filepath.Ext(fileName), "."),
			FileHash: HashBytes(data),
		},
		Status: string(status),
	}
}
