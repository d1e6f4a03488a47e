package wheel

// MaxBmsCells is the fixed capacity of the per-pack cell-voltage array.
const MaxBmsCells = 56

// CellVoltages is a fixed-size array of per-cell voltages, in volts, with
// 3-decimal precision. Unused trailing entries are left at 0.
type CellVoltages [MaxBmsCells]float64

// BmsSnapshot is the immutable view of a single battery pack embedded in a
// WheelState. SmartBms produces these once all expected sub-pages have
// arrived; a partial assembly that outlives its TTL is discarded.
type BmsSnapshot struct {
	SerialNumber  string `json:"serialNumber"`
	VersionNumber string `json:"versionNumber"`

	FactoryCap int32 `json:"factoryCap"` // mAh
	ActualCap  int32 `json:"actualCap"`  // mAh
	RemainCap  int32 `json:"remainCap"`  // mAh
	RemPerc    int32 `json:"remPerc"`    // %

	FullCycles  int32  `json:"fullCycles"`
	ChargeCount int32  `json:"chargeCount"`
	MfgDateStr  string `json:"mfgDateStr"`

	Status int32 `json:"status"` // status word

	Voltage int32 `json:"voltage"` // 1/100 V, bulk
	Current int32 `json:"current"` // 1/100 A, signed

	Voltage1 int32 `json:"voltage1"` // 1/100 V, semi-pack 1
	Voltage2 int32 `json:"voltage2"` // 1/100 V, semi-pack 2

	Temps    [6]int32 `json:"temps"` // 1/100 °C, cell-pack temps
	MosTemp  int32    `json:"mosTemp"`  // 1/100 °C
	EnvTemp  int32    `json:"envTemp"`  // 1/100 °C
	Humidity int32    `json:"humidity"` // %

	Balance uint64 `json:"balance"` // balance bitmap

	Health int32 `json:"health"` // %

	CellCount  int32   `json:"cellCount"`
	MinCellV   float64 `json:"minCellV"`
	MaxCellV   float64 `json:"maxCellV"`
	AvgCellV   float64 `json:"avgCellV"`
	DiffCellV  float64 `json:"diffCellV"`
	MinCellIdx int32   `json:"minCellIdx"` // 1-indexed
	MaxCellIdx int32   `json:"maxCellIdx"` // 1-indexed

	Cells CellVoltages `json:"cells"`
}

// bmsPage tracks which sub-pages of a multi-frame assembly have arrived.
type bmsPage uint32

// SmartBms is the mutable, per-connection, per-pack assembler that
// accumulates sub-pages/sub-packets across multiple decode calls and
// flushes to an immutable BmsSnapshot once complete; a partial assembly
// older than the TTL is discarded. It is the one piece of mutable state
// shared across decode calls and has no internal locking: callers
// serialize access, as connection.Manager does by decoding on a single
// goroutine. Pending returns a pointer into the assembler's own state.
type SmartBms struct {
	pending   BmsSnapshot
	haveMask  bmsPage
	wantMask  bmsPage
	startedAt int64 // epoch ms of the first page of the current assembly
}

// NewSmartBms returns an assembler expecting the sub-pages identified by
// the bits in want (vendor-specific meaning; see each decoder).
func NewSmartBms(want uint32) *SmartBms {
	return &SmartBms{wantMask: bmsPage(want)}
}

// Reset clears all accumulated pages, discarding any partial assembly.
func (b *SmartBms) Reset() {
	b.pending = BmsSnapshot{}
	b.haveMask = 0
	b.startedAt = 0
}

// MarkPage records that sub-page bit has been received at time nowMs,
// expiring any stale partial assembly older than ttlMs first.
func (b *SmartBms) MarkPage(bit uint32, nowMs, ttlMs int64) {
	if b.startedAt != 0 && nowMs-b.startedAt > ttlMs {
		b.Reset()
	}
	if b.haveMask == 0 {
		b.startedAt = nowMs
	}
	b.haveMask |= bmsPage(bit)
}

// Complete reports whether every expected sub-page bit has been received.
func (b *SmartBms) Complete() bool {
	return b.wantMask != 0 && b.haveMask&b.wantMask == b.wantMask
}

// Pending returns a mutable pointer to the in-progress snapshot so
// per-vendor decode functions can fill fields as sub-pages arrive.
func (b *SmartBms) Pending() *BmsSnapshot {
	return &b.pending
}

// Flush computes cell statistics over the populated cell range and
// returns an immutable snapshot, then resets the assembler for the next
// cycle.
func (b *SmartBms) Flush() *BmsSnapshot {
	b.recomputeCellStats()
	snap := b.pending
	b.Reset()
	return &snap
}

// recomputeCellStats derives min/max/avg/diff cell voltage and their
// 1-indexed positions over the first CellCount entries of Cells.
func (b *SmartBms) recomputeCellStats() {
	p := &b.pending
	if p.CellCount <= 0 {
		return
	}
	n := int(p.CellCount)
	if n > MaxBmsCells {
		n = MaxBmsCells
	}
	var sum float64
	minV, maxV := p.Cells[0], p.Cells[0]
	minIdx, maxIdx := 1, 1
	for i := 0; i < n; i++ {
		v := p.Cells[i]
		sum += v
		if v < minV {
			minV = v
			minIdx = i + 1
		}
		if v > maxV {
			maxV = v
			maxIdx = i + 1
		}
	}
	p.MinCellV = minV
	p.MaxCellV = maxV
	p.AvgCellV = sum / float64(n)
	p.DiffCellV = maxV - minV
	p.MinCellIdx = int32(minIdx)
	p.MaxCellIdx = int32(maxIdx)
}
