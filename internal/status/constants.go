// internal/status/constants.go
package status

// Device status block layout.
// A unit that opts in owns SlotsPerDevice holding registers on each target,
// starting at BaseAddress(status_slot). The layout is fixed.

const SlotsPerDevice = 20

// Slot indices inside a block.
const (
	SlotHealthCode     = 0
	SlotLastErrorCode  = 1
	SlotSecondsInError = 2

	// 3-10 reserved, written as zero

	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
)

// DeviceNameMaxChars is two ASCII characters per name slot.
const DeviceNameMaxChars = 2 * SlotDeviceNameSlots

// Health codes written to SlotHealthCode.
const (
	HealthUnknown  uint16 = 0
	HealthOK       uint16 = 1
	HealthError    uint16 = 2
	HealthStale    uint16 = 3
	HealthDisabled uint16 = 4
)

// HealthString names a health code for logs.
func HealthString(h uint16) string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "invalid"
	}
}

// BaseAddress is the first register of the block owned by slot.
func BaseAddress(slot uint16) uint16 {
	return slot * SlotsPerDevice
}
