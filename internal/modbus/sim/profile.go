package sim

// Register layout of the emulated firmware. Legacy firmware publishes the
// type and channel counts at the lower addresses only.
const (
	regType       = 559
	regTypeLegacy = 260

	regAICount = 320
	regAOCount = 330
	regDICount = 300
	regDOCount = 310

	legacyOffset = 200

	coilAIMask  = 595
	regAIRanges = 427
	regAORanges = 459
)

// Profile describes the module the simulator pretends to be.
type Profile struct {
	TypeID uint16 `yaml:"type_id"`
	Legacy bool   `yaml:"legacy"`

	AI int `yaml:"ai"`
	AO int `yaml:"ao"`
	DI int `yaml:"di"`
	DO int `yaml:"do"`

	AIRange uint16 `yaml:"ai_range"`
	AORange uint16 `yaml:"ao_range"`

	// AIDisabled lists AI channels whose enable coil is cleared.
	AIDisabled []int `yaml:"ai_disabled"`

	// AODither is added to every code written to an AO channel.
	AODither int `yaml:"ao_dither"`
}

// Known module layouts, keyed by model name.
var Profiles = map[string]Profile{
	"ET-7017": {TypeID: 0x7017, AI: 8, DO: 4, AIRange: 0x08},
	"ET-7018": {TypeID: 0x7018, AI: 8, DO: 4, AIRange: 0x0F},
	"ET-7026": {TypeID: 0x7026, AI: 6, AO: 2, DI: 2, DO: 2, AIRange: 0x08, AORange: 0x33},
	"ET-7050": {TypeID: 0x7050, DI: 12, DO: 6},
	"ET-7060": {TypeID: 0x7060, DI: 6, DO: 6},
}

// Load writes the identification, topology and range registers of p into b.
func (b *Bank) Load(p Profile) {
	typeReg, countBase := uint16(regType), uint16(0)
	if p.Legacy {
		typeReg, countBase = regTypeLegacy, legacyOffset
	}

	b.SetHolding(typeReg, p.TypeID)
	b.SetInput(regAICount-countBase, uint16(p.AI))
	b.SetInput(regAOCount-countBase, uint16(p.AO))
	b.SetInput(regDICount-countBase, uint16(p.DI))
	b.SetInput(regDOCount-countBase, uint16(p.DO))

	mask := make([]bool, p.AI)
	for i := range mask {
		mask[i] = true
	}
	for _, k := range p.AIDisabled {
		if k >= 0 && k < p.AI {
			mask[k] = false
		}
	}
	b.SetCoils(coilAIMask, mask...)

	b.SetHolding(regAIRanges, repeat(p.AIRange, p.AI)...)
	b.SetHolding(regAORanges, repeat(p.AORange, p.AO)...)

	b.mu.Lock()
	b.aoCount = p.AO
	b.aoDither = p.AODither
	b.mu.Unlock()
}

func repeat(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}
