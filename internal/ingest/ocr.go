// SPDX-License-Identifier: MIT

package ingest

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/metrics"
	"github.com/memscreen/memscreen/internal/procgroup"
)

// ocrTimeout bounds one tesseract run; a stuck OCR must not stall the
// whole analysis.
const ocrTimeout = 30 * time.Second

// ocr extracts text from one PNG frame. OCR is strictly best-effort: a
// missing binary, a failing run, or a timeout all yield the empty
// string.
func (p *Pipeline) ocr(ctx context.Context, png []byte) string {
	if p.cfg.TesseractBin == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.TesseractBin, "stdin", "stdout")
	procgroup.Set(cmd)
	cmd.Stdin = bytes.NewReader(png)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		metrics.IncOCRFailure()
		p.logger.Debug().Err(err).Msg("ocr failed, continuing without text")
		return ""
	}
	return strings.TrimSpace(out.String())
}
