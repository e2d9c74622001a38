package testutil

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/slotstore/internal/testutil/model"
)

// OpKind is the kind of a generated catalog operation.
type OpKind int

const (
	OpCreateManual OpKind = iota
	OpCreateAutomatic
	OpUpdate
	OpDelete
	OpGet
	OpList
	OpLatest
	OpReopen
)

func (k OpKind) String() string {
	switch k {
	case OpCreateManual:
		return "create-manual"
	case OpCreateAutomatic:
		return "create-automatic"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpGet:
		return "get"
	case OpList:
		return "list"
	case OpLatest:
		return "latest"
	case OpReopen:
		return "reopen"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one generated operation. ID is set for update, delete and get;
// Payload for creates and updates.
type Op struct {
	Kind    OpKind
	ID      uuid.UUID
	Payload string
}

func (op Op) String() string {
	switch op.Kind {
	case OpCreateManual, OpCreateAutomatic:
		return fmt.Sprintf("%s %q", op.Kind, op.Payload)
	case OpUpdate:
		return fmt.Sprintf("%s %s %q", op.Kind, op.ID, op.Payload)
	case OpDelete, OpGet:
		return fmt.Sprintf("%s %s", op.Kind, op.ID)
	default:
		return op.Kind.String()
	}
}

// OpGenConfig configures the operation generator. Rates are percentages;
// whatever they leave over goes to OpLatest.
type OpGenConfig struct {
	CreateManualRate    int
	CreateAutomaticRate int
	UpdateRate          int
	DeleteRate          int
	GetRate             int
	ListRate            int
	ReopenRate          int

	// InvalidIDRate is the percentage of id references that name an id the
	// catalog never issued.
	InvalidIDRate int

	// Capacity is the automatic capacity of the catalog under test.
	Capacity int
}

// DefaultOpGenConfig returns a balanced configuration with a small capacity
// so eviction happens often.
func DefaultOpGenConfig() OpGenConfig {
	return OpGenConfig{
		CreateManualRate:    15,
		CreateAutomaticRate: 25,
		UpdateRate:          15,
		DeleteRate:          10,
		GetRate:             15,
		ListRate:            10,
		ReopenRate:          5,
		InvalidIDRate:       10,
		Capacity:            3,
	}
}

// OpGenerator derives operations from fuzz bytes. Id references are drawn
// from the model so most of them hit existing entries.
type OpGenerator struct {
	stream *ByteStream
	config OpGenConfig
	model  *model.Model
}

// NewOpGenerator returns a generator over fuzzBytes.
func NewOpGenerator(fuzzBytes []byte, m *model.Model, cfg *OpGenConfig) *OpGenerator {
	return &OpGenerator{
		stream: NewByteStream(fuzzBytes),
		config: *cfg,
		model:  m,
	}
}

// HasMore reports whether more operations can be generated.
func (g *OpGenerator) HasMore() bool {
	return g.stream.HasMore()
}

// NextOp generates the next operation.
func (g *OpGenerator) NextOp() Op {
	choice := g.stream.NextInt(100)

	rates := []struct {
		kind OpKind
		rate int
	}{
		{OpCreateManual, g.config.CreateManualRate},
		{OpCreateAutomatic, g.config.CreateAutomaticRate},
		{OpUpdate, g.config.UpdateRate},
		{OpDelete, g.config.DeleteRate},
		{OpGet, g.config.GetRate},
		{OpList, g.config.ListRate},
		{OpReopen, g.config.ReopenRate},
	}

	cumulative := 0

	for _, r := range rates {
		cumulative += r.rate
		if choice < cumulative {
			return g.gen(r.kind)
		}
	}

	return Op{Kind: OpLatest}
}

func (g *OpGenerator) gen(kind OpKind) Op {
	op := Op{Kind: kind}

	switch kind {
	case OpCreateManual, OpCreateAutomatic:
		op.Payload = g.stream.NextPayload(16)
	case OpUpdate:
		op.ID = g.pickID()
		op.Payload = g.stream.NextPayload(16)
	case OpDelete, OpGet:
		op.ID = g.pickID()
	}

	return op
}

func (g *OpGenerator) pickID() uuid.UUID {
	ids := g.model.IDs()

	if len(ids) == 0 || g.stream.NextInt(100) < g.config.InvalidIDRate {
		var unknown uuid.UUID

		unknown[0] = g.stream.NextByte()
		unknown[15] = g.stream.NextByte()

		return unknown
	}

	return ids[g.stream.NextInt(len(ids))]
}
