// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
)

// orphanScanLimit bounds how many pending rows one boot scan inspects.
// Orphans are always recent, so the newest-first listing covers them.
const orphanScanLimit = 500

// ScanOrphans cleans up after a crash: pending recordings whose video
// file never materialized (or vanished) are marked failed and their
// scratch directories removed, along with scratch directories that
// belong to no recording at all. It returns the number of rows marked
// failed. Run once at boot, before the first recording can start.
func (o *Orchestrator) ScanOrphans(ctx context.Context) (int, error) {
	recs, err := o.store.ListRecordings(ctx, store.RecordingFilter{
		AnalysisState: types.AnalysisPending,
		Limit:         orphanScanLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("list pending recordings: %w", err)
	}

	orphaned := 0
	pending := make(map[string]bool, len(recs))
	for i := range recs {
		rec := &recs[i]
		pending[rec.ID] = true

		if rec.FilePath != "" {
			if _, err := os.Stat(rec.FilePath); err == nil {
				continue // finished, waiting on analysis
			}
		}

		state := types.AnalysisFailed
		if err := o.store.UpdateRecording(ctx, rec.ID, types.RecordingPatch{AnalysisState: &state}); err != nil {
			o.logger.Error().Err(err).Str("recording_id", rec.ID).Msg("could not mark orphan failed")
			continue
		}
		o.removeScratch(rec.ID)
		orphaned++
		o.logger.Warn().Str("recording_id", rec.ID).Msg("orphaned recording marked failed")
	}

	entries, err := os.ReadDir(o.cfg.ScratchRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return orphaned, nil
		}
		return orphaned, fmt.Errorf("scan scratch root: %w", err)
	}
	for _, ent := range entries {
		if !ent.IsDir() || pending[ent.Name()] {
			continue
		}
		_, err := o.store.GetRecording(ctx, ent.Name())
		switch {
		case err == nil:
			// The row survived; its scratch may still feed a re-analysis.
		case errors.Is(err, store.ErrNotFound):
			o.removeScratch(ent.Name())
		default:
			o.logger.Warn().Err(err).Str("dir", ent.Name()).Msg("scratch owner lookup failed, keeping")
		}
	}
	return orphaned, nil
}

func (o *Orchestrator) removeScratch(id string) {
	dir := filepath.Join(o.cfg.ScratchRoot, id)
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn().Err(err).Str("dir", dir).Msg("scratch cleanup failed")
	}
}
