package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"legal-intel-platform/utils"
)

// SlicePages extracts a contiguous page range from a PDF as a standalone
// PDF, using qpdf when available. The whole file is returned unchanged when
// the range already covers it.
func SlicePages(ctx context.Context, data []byte, pageStart, pageEnd, totalPages int) ([]byte, error) {
	if pageStart < 1 || pageEnd < pageStart || pageEnd > totalPages {
		return nil, utils.NewIntegrity(
			fmt.Sprintf("invalid page range %d-%d of %d", pageStart, pageEnd, totalPages))
	}
	if pageStart == 1 && pageEnd == totalPages {
		return data, nil
	}
	if !hasBinary("qpdf") {
		return nil, utils.NewTransient("qpdf not available", nil)
	}

	sliceCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	// qpdf needs seekable input, so stage through a temp file.
	tmpIn, err := os.CreateTemp("", "slice-in-*.pdf")
	if err != nil {
		return nil, utils.NewTransient("create temp file", err)
	}
	defer os.Remove(tmpIn.Name())
	if _, err := tmpIn.Write(data); err != nil {
		tmpIn.Close()
		return nil, utils.NewTransient("write temp file", err)
	}
	tmpIn.Close()

	tmpOut := filepath.Join(os.TempDir(), filepath.Base(tmpIn.Name())+".out.pdf")
	defer os.Remove(tmpOut)

	pageRange := fmt.Sprintf("%d-%d", pageStart, pageEnd)
	cmd := exec.CommandContext(sliceCtx, "qpdf", tmpIn.Name(), "--pages", ".", pageRange, "--", tmpOut)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if sliceCtx.Err() != nil {
			return nil, utils.NewCancelled("pdf slice cancelled")
		}
		return nil, utils.NewTransient(
			fmt.Sprintf("qpdf failed: %s", stderr.String()), err)
	}

	sliced, err := os.ReadFile(tmpOut)
	if err != nil {
		return nil, utils.NewTransient("read sliced pdf", err)
	}
	return sliced, nil
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
