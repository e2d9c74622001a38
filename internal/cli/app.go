package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/slotstore/internal/config"
	"github.com/calvinalkan/slotstore/pkg/catalog"
)

var (
	errIDRequired       = errors.New("id is required")
	errInvalidID        = errors.New("invalid id")
	errPayloadRequired  = errors.New("payload is required")
	errInvalidJSON      = errors.New("payload is not valid JSON")
	errNoStdin          = errors.New("no stdin available")
	errMetadataDisabled = errors.New("metadata is disabled (enable with --metadata)")
	errEmptyCatalog     = errors.New("catalog is empty")
)

// app carries what commands share within one invocation. The catalog is
// opened on first use so commands like print-config work without one.
type app struct {
	cfg     config.Config
	env     map[string]string
	log     *slog.Logger
	metrics *catalog.BasicMetricsCollector

	// extra receives the same events as metrics. Set before the catalog is
	// opened.
	extra catalog.MetricsCollector

	store *store
}

func (a *app) catalog(ctx context.Context, o *IO) (*store, error) {
	if a.store != nil {
		return a.store, nil
	}

	opts := a.cfg.CatalogOptions(a.log)
	opts.Metrics = a.metrics

	if a.extra != nil {
		opts.Metrics = teeMetrics{a.metrics, a.extra}
	}

	s, err := catalog.Open[json.RawMessage, json.RawMessage](ctx, a.cfg.DirAbs, opts)
	if err != nil {
		return nil, err
	}

	st, err := s.Stat(ctx)
	if err != nil {
		return nil, err
	}

	if r := st.Repairs; r.Total() > 0 {
		o.Warn("catalog repaired on open: %d orphan(s), %d duplicate id(s), %d duplicate revision(s), %d evicted",
			r.Orphans, r.DuplicateIDs, r.DuplicateRevisions, r.Evicted)
	}

	a.store = s

	return s, nil
}

func (a *app) metadataEnabled() bool {
	return a.cfg.Metadata != nil && *a.cfg.Metadata
}

// teeMetrics forwards every event to each collector.
type teeMetrics []catalog.MetricsCollector

func (t teeMetrics) RecordOperation(op catalog.Op, d time.Duration, err error) {
	for _, c := range t {
		c.RecordOperation(op, d, err)
	}
}

func (t teeMetrics) RecordEviction(n int) {
	for _, c := range t {
		c.RecordEviction(n)
	}
}

func (t teeMetrics) RecordRepairs(r catalog.Repairs) {
	for _, c := range t {
		c.RecordRepairs(r)
	}
}

func (t teeMetrics) RecordSize(manual, automatic int) {
	for _, c := range t {
		c.RecordSize(manual, automatic)
	}
}

func parseID(args []string) (uuid.UUID, error) {
	if len(args) == 0 {
		return uuid.Nil, errIDRequired
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", errInvalidID, args[0])
	}

	return id, nil
}

// readPayload joins args into one JSON document. A lone "-" reads the
// document from stdin.
func readPayload(o *IO, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, errPayloadRequired
	}

	raw := []byte(strings.Join(args, " "))

	if len(args) == 1 && args[0] == "-" {
		if o.in == nil {
			return nil, errNoStdin
		}

		data, err := io.ReadAll(o.in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		raw = data
	}

	return parseJSON(raw)
}

func parseJSON(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}

	return json.RawMessage(raw), nil
}

// metaArg validates the --meta flag against the catalog configuration.
func (a *app) metaArg(value string, set bool) (json.RawMessage, error) {
	if !set {
		if a.metadataEnabled() {
			return json.RawMessage("null"), nil
		}

		return nil, nil
	}

	if !a.metadataEnabled() {
		return nil, errMetadataDisabled
	}

	return parseJSON([]byte(value))
}
