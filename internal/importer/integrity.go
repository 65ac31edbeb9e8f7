package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/hrstream/employee-import/internal/domain"
)

// ComputeFingerprint hashes the file contents and captures size and
// mtime. Stored on the job at upload and checked before any resume.
func ComputeFingerprint(path string) (domain.Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Fingerprint{}, fmt.Errorf("open file for fingerprint: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return domain.Fingerprint{}, fmt.Errorf("stat file: %w", err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return domain.Fingerprint{}, fmt.Errorf("hash file: %w", err)
	}

	return domain.Fingerprint{
		FileSize:         info.Size(),
		FileHash:         hex.EncodeToString(hasher.Sum(nil)),
		FileLastModified: info.ModTime().UTC(),
	}, nil
}

// VerifyFingerprint recomputes the fingerprint and requires an exact
// match on size, hash, and mtime. A mismatch means the file changed
// since upload and the checkpoint no longer describes it.
func VerifyFingerprint(path string, want domain.Fingerprint) (domain.Fingerprint, error) {
	got, err := ComputeFingerprint(path)
	if err != nil {
		return domain.Fingerprint{}, err
	}
	if !got.Equal(want) {
		return got, fmt.Errorf("%w: size %d->%d hash %.12s->%.12s",
			domain.ErrFingerprintMismatch, want.FileSize, got.FileSize, want.FileHash, got.FileHash)
	}
	return got, nil
}
