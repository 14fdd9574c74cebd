// Package importer fetches bulk settings payloads from the content API and
// forwards them to a game session as ImportRecords.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/protocol"
)

// ErrImport marks a failed fetch or a body that is not UTF-8 text.
var ErrImport = errors.New("importer: import failed")

// RecordImporter receives import bodies. *multiworld.GameSession implements it.
type RecordImporter interface {
	ImportRecords(ctx context.Context, body string, importType protocol.ImportType) error
}

// Importer orchestrates a fetch from a Source into a RecordImporter.
type Importer struct {
	source Source
	logger *zap.Logger
}

// New constructs an Importer backed by the given Source.
//
// Precondition: source must be non-nil.
func New(source Source, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{source: source, logger: logger}
}

// Run fetches the body for settings and submits it to target.
//
// Postcondition: target received exactly one ImportRecords call, or an error
// is returned and target was not called.
func (imp *Importer) Run(ctx context.Context, target RecordImporter, settings Settings, importType protocol.ImportType) error {
	start := time.Now()
	body, err := imp.source.Fetch(ctx, settings)
	if err != nil {
		return fmt.Errorf("fetching import body: %w", err)
	}
	imp.logger.Info("import body fetched",
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := target.ImportRecords(ctx, body, importType); err != nil {
		return fmt.Errorf("submitting import: %w", err)
	}
	return nil
}
