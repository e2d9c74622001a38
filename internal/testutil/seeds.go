package testutil

// Seed bundles a readable name with fuzz bytes.
//
// Curated seeds encode scenarios that random inputs take a long time to hit.
// They decode to the intended operations only with [DefaultOpGenConfig].
type Seed struct {
	Name string
	Data []byte
}

// CuratedSeeds returns every curated seed.
func CuratedSeeds() []Seed {
	return []Seed{
		{Name: "automatic_rotation", Data: SeedAutomaticRotation()},
		{Name: "update_moves_to_head", Data: SeedUpdateMovesToHead()},
		{Name: "delete_latest", Data: SeedDeleteLatest()},
		{Name: "delete_all_then_reopen", Data: SeedDeleteAllThenReopen()},
		{Name: "unknown_ids", Data: SeedUnknownIDs()},
	}
}

// SeedAutomaticRotation overflows the automatic collection twice.
func SeedAutomaticRotation() []byte {
	b := NewSeedBuilder(DefaultOpGenConfig())

	for range 5 {
		b.Create(OpCreateAutomatic, "auto")
	}

	return b.Create(OpCreateManual, "keep").List().Reopen().Bytes()
}

// SeedUpdateMovesToHead updates the oldest entry of each collection.
func SeedUpdateMovesToHead() []byte {
	return NewSeedBuilder(DefaultOpGenConfig()).
		Create(OpCreateManual, "m1").
		Create(OpCreateManual, "m2").
		Create(OpCreateAutomatic, "a1").
		Create(OpCreateAutomatic, "a2").
		Update(0, "m1v2").
		Update(1, "a1v2").
		List().
		Get(3).
		Bytes()
}

// SeedDeleteLatest deletes the newest entry twice so latest falls back.
func SeedDeleteLatest() []byte {
	return NewSeedBuilder(DefaultOpGenConfig()).
		Create(OpCreateManual, "a").
		Create(OpCreateAutomatic, "b").
		Create(OpCreateManual, "c").
		Delete(2).
		Latest().
		Delete(1).
		Latest().
		Bytes()
}

// SeedDeleteAllThenReopen empties the catalog, reopens it and creates again
// so the preserved counter is observable.
func SeedDeleteAllThenReopen() []byte {
	return NewSeedBuilder(DefaultOpGenConfig()).
		Create(OpCreateManual, "a").
		Create(OpCreateAutomatic, "b").
		Delete(0).
		Delete(0).
		Reopen().
		Create(OpCreateManual, "c").
		Latest().
		Bytes()
}

// SeedUnknownIDs references ids the catalog never issued.
func SeedUnknownIDs() []byte {
	return NewSeedBuilder(DefaultOpGenConfig()).
		Create(OpCreateManual, "a").
		UnknownGet().
		Bytes()
}

// SeedBuilder encodes operations into the bytes [OpGenerator] decodes.
//
// Id references are positions in the model's id order, oldest revision
// first, at the time the operation runs. The builder does not track the
// model; callers keep the positions valid.
type SeedBuilder struct {
	cfg OpGenConfig
	out []byte
}

// NewSeedBuilder returns a builder for cfg.
func NewSeedBuilder(cfg OpGenConfig) *SeedBuilder {
	return &SeedBuilder{cfg: cfg}
}

// Bytes returns the encoded seed.
func (b *SeedBuilder) Bytes() []byte {
	return b.out
}

// selector returns the first choice byte that decodes to kind.
func (b *SeedBuilder) selector(kind OpKind) byte {
	rates := []int{
		b.cfg.CreateManualRate,
		b.cfg.CreateAutomaticRate,
		b.cfg.UpdateRate,
		b.cfg.DeleteRate,
		b.cfg.GetRate,
		b.cfg.ListRate,
		b.cfg.ReopenRate,
	}

	start := 0
	for k := range min(int(kind), len(rates)) {
		start += rates[k]
	}

	return byte(start)
}

func (b *SeedBuilder) payload(p string) {
	if p == "" {
		p = "a"
	}

	b.out = append(b.out, byte(len(p)-1))
	for _, c := range []byte(p) {
		b.out = append(b.out, c-'a')
	}
}

func (b *SeedBuilder) knownID(pos int) {
	b.out = append(b.out, 99, byte(pos))
}

// Create adds a create of kind OpCreateManual or OpCreateAutomatic. payload
// must be lowercase letters.
func (b *SeedBuilder) Create(kind OpKind, payload string) *SeedBuilder {
	b.out = append(b.out, b.selector(kind))
	b.payload(payload)

	return b
}

// Update adds an update of the entry at pos.
func (b *SeedBuilder) Update(pos int, payload string) *SeedBuilder {
	b.out = append(b.out, b.selector(OpUpdate))
	b.knownID(pos)
	b.payload(payload)

	return b
}

// Delete adds a delete of the entry at pos.
func (b *SeedBuilder) Delete(pos int) *SeedBuilder {
	b.out = append(b.out, b.selector(OpDelete))
	b.knownID(pos)

	return b
}

// Get adds a get of the entry at pos.
func (b *SeedBuilder) Get(pos int) *SeedBuilder {
	b.out = append(b.out, b.selector(OpGet))
	b.knownID(pos)

	return b
}

// UnknownGet adds a get of an id the catalog never issued.
func (b *SeedBuilder) UnknownGet() *SeedBuilder {
	b.out = append(b.out, b.selector(OpGet), 0, 0xab, 0xcd)

	return b
}

// List adds a listing comparison.
func (b *SeedBuilder) List() *SeedBuilder {
	b.out = append(b.out, b.selector(OpList))

	return b
}

// Reopen adds a reopen of the catalog.
func (b *SeedBuilder) Reopen() *SeedBuilder {
	b.out = append(b.out, b.selector(OpReopen))

	return b
}

// Latest adds a latest-id comparison.
func (b *SeedBuilder) Latest() *SeedBuilder {
	b.out = append(b.out, 99)

	return b
}
