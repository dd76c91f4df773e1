package device

// Register map of ET-7000 firmware. Legacy firmware publishes the type and
// channel counts at the fallback addresses only.
const (
	regType       = 559
	regTypeLegacy = 260

	regAICount       = 320
	regAICountLegacy = 120
	regAOCount       = 330
	regAOCountLegacy = 130
	regDICount       = 300
	regDICountLegacy = 100
	regDOCount       = 310
	regDOCountLegacy = 110

	coilAIMask  = 595
	regAIRanges = 427
	regAORanges = 459

	// Raw channel data starts at zero in every register class.
	rawBase = 0
)

// layout is the per-group part of the register map.
type layout struct {
	count, countLegacy uint16
	ranges             uint16
	hasRanges          bool
}

var layouts = [groupCount]layout{
	AI: {count: regAICount, countLegacy: regAICountLegacy, ranges: regAIRanges, hasRanges: true},
	AO: {count: regAOCount, countLegacy: regAOCountLegacy, ranges: regAORanges, hasRanges: true},
	DI: {count: regDICount, countLegacy: regDICountLegacy},
	DO: {count: regDOCount, countLegacy: regDOCountLegacy},
}
